/******************************************************************************
 *
 *  Description :
 *
 *    Client session: owns the connection, generates message ids, correlates
 *    requests with server acknowledgements, and fans incoming messages out
 *    to topics.
 *
 *****************************************************************************/

// Package client implements a stateful engine for the publish/subscribe
// messaging protocol: session management, topics with cached subscribers
// and messages, presence tracking, and message history.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/tinode/go-client/logs"
	"github.com/tinode/go-client/transport"
	"github.com/tinode/go-client/types"
)

const (
	// Version of the library and of the supported protocol dialect.
	Version = "0.24"

	// LibraryID identifies this client in the user agent string.
	LibraryID = "tingo/" + Version

	// Requests not acknowledged within this interval fail with ErrTimeout.
	requestExpireAfter = 5 * time.Second
	// How often the pending requests are swept for expiration.
	requestSweepPeriod = 1 * time.Second
)

// Config is the client configuration.
type Config struct {
	// AppName identifies the application in the user agent string.
	AppName string
	// Host name and optional port of the server.
	Host string
	// APIKey issued to the application by the server operator.
	APIKey string
	// Transport is "ws" for websocket (default) or "lp" for long polling.
	Transport string
	// Secure selects TLS.
	Secure bool
	// AutoReconnect enables reconnection with exponential backoff.
	AutoReconnect bool
	// DeviceID is the unique id of this device for push routing.
	DeviceID string
	// Lang is the ISO 639-1 code of the human language of the device.
	Lang string
	// Platform override: "web", "ios", "android". Derived from the OS when
	// empty.
	Platform string
	// Backoff overrides the default reconnection schedule when non-nil.
	Backoff *transport.BackoffSettings
	// Formatter converts application content to wire content on publish.
	// Optional.
	Formatter ContentFormatter
}

// ContentFormatter converts application-level message content into the wire
// form. The returned head entries are merged into the message header.
type ContentFormatter interface {
	FormatContent(content any) (wire any, head map[string]any)
}

// Events are session-level callbacks. All callbacks are optional and are
// invoked from the client's own goroutines.
type Events struct {
	// OnConnect is called after a successful handshake with the server.
	OnConnect func(code int, text string, params map[string]any)
	// OnLogin is called after an authentication attempt completes.
	OnLogin func(code int, text string)
	// OnDisconnect is called when the connection is lost or closed.
	OnDisconnect func(err *types.NetworkError)
	// OnAutoReconnect reports reconnection scheduling: the computed delay
	// before the wait, then zero when the attempt starts or a negative value
	// when the schedule was cancelled.
	OnAutoReconnect func(delay time.Duration)
	// OnNetworkProbe is called when the server sends a liveness probe.
	OnNetworkProbe func()
	// OnMessage is called for every parsed message before it is routed.
	OnMessage func(msg *ServerComMessage)
	// OnCtrlMessage is called for {ctrl} messages not consumed by a pending
	// request.
	OnCtrlMessage func(ctrl *MsgServerCtrl)
	// OnDataMessage is called for every {data} message after topic routing.
	OnDataMessage func(data *MsgServerData)
	// OnPresMessage is called for every {pres} message after topic routing.
	OnPresMessage func(pres *MsgServerPres)
	// OnInfoMessage is called for every {info} message after topic routing.
	OnInfoMessage func(info *MsgServerInfo)
}

// AuthToken is a server-issued authentication token with its lifetime.
type AuthToken struct {
	Token   string
	Expires time.Time
}

type pendingResp struct {
	msg *ServerComMessage
	err error
}

type pendingReq struct {
	id    string
	topic string
	ts    time.Time
	resp  chan pendingResp
}

// Client is a single session with the server.
type Client struct {
	mu     sync.Mutex
	cfg    Config
	conn   transport.Conn
	listen Events

	pending map[string]*pendingReq
	topics  map[string]*Topic

	// msgID is the next request id; zero means the pool is exhausted.
	msgID int64

	myUID         string
	authenticated bool
	authToken     *AuthToken
	serverParams  map[string]any
	everConnected bool

	stopSweep chan struct{}
}

// NewClient creates a client. The connection is not opened until Connect
// is called.
func NewClient(cfg Config, listen Events) (*Client, error) {
	if cfg.Transport == "" {
		cfg.Transport = "ws"
	}
	boff := transport.DefaultBackoff()
	if cfg.Backoff != nil {
		boff = *cfg.Backoff
	}

	c := &Client{
		cfg:       cfg,
		listen:    listen,
		pending:   make(map[string]*pendingReq),
		topics:    make(map[string]*Topic),
		msgID:     rand.Int63n(0xFFFF) + 0xFFFF,
		stopSweep: make(chan struct{}),
	}

	conn, err := transport.New(
		transport.Options{
			Host:          cfg.Host,
			APIKey:        cfg.APIKey,
			Secure:        cfg.Secure,
			AutoReconnect: cfg.AutoReconnect,
			Transport:     cfg.Transport,
		},
		boff,
		transport.Events{
			OnOpen:          c.channelOpened,
			OnMessage:       c.dispatch,
			OnDisconnect:    c.channelLost,
			OnAutoReconnect: c.listen.OnAutoReconnect,
		})
	if err != nil {
		return nil, err
	}
	c.conn = conn

	go c.sweepLoop()
	return c, nil
}

// Connect opens the connection to the server. The protocol handshake is
// performed automatically once the channel is ready; its outcome is
// reported through the OnConnect callback.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx, "", false)
}

// Disconnect closes the connection and cancels automatic reconnection.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
}

// Close disconnects and releases the client's background resources. The
// client cannot be reused afterwards.
func (c *Client) Close() {
	c.conn.Disconnect()
	close(c.stopSweep)
}

// IsConnected checks if the channel to the server is live.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// IsAuthenticated checks if the session has been authenticated.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// MyUID returns the id of the authenticated user, empty if not logged in.
func (c *Client) MyUID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.myUID
}

// AuthToken returns the token issued at login, nil if not logged in.
func (c *Client) AuthToken() *AuthToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authToken
}

// ServerParams returns the parameters reported by the server during the
// handshake, such as the advertised version and size limits.
func (c *Client) ServerParams() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverParams
}

// nextID issues the next unique request id. Empty when the pool is
// exhausted.
func (c *Client) nextID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.msgID == 0 {
		return ""
	}
	id := strconv.FormatInt(c.msgID, 10)
	c.msgID++
	return id
}

// channelOpened restores the protocol session over a fresh channel: the
// handshake, then re-authentication if the session was logged in before.
func (c *Client) channelOpened() {
	c.mu.Lock()
	relogin := c.everConnected && c.authToken != nil &&
		c.authToken.Expires.After(time.Now())
	c.everConnected = true
	token := ""
	if relogin {
		token = c.authToken.Token
	}
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestExpireAfter)
		defer cancel()
		if err := c.hello(ctx); err != nil {
			logs.Warn.Println("handshake failed:", err)
			var srvErr *types.ServerError
			if errors.As(err, &srvErr) {
				// The server understood and refused; reported via OnConnect.
				return
			}
			// The channel is open but the protocol session is not usable.
			// Surface the failure and retry over a fresh channel.
			c.channelLost(types.NewNetworkError())
			if cerr := c.conn.Connect(context.Background(), "", true); cerr != nil {
				logs.Warn.Println("reconnect after failed handshake:", cerr)
			}
			return
		}
		if relogin {
			if _, err := c.Login(ctx, "token", []byte(token), nil); err != nil {
				logs.Warn.Println("session restore failed:", err)
			}
		}
	}()
}

// channelLost resets the session state when the channel goes down: all
// pending requests fail, all topics detach.
func (c *Client) channelLost(err *types.NetworkError) {
	c.mu.Lock()
	c.authenticated = false
	pending := c.pending
	c.pending = make(map[string]*pendingReq)
	detached := make([]*Topic, 0, len(c.topics))
	for _, t := range c.topics {
		detached = append(detached, t)
	}
	c.mu.Unlock()

	for _, r := range pending {
		r.resp <- pendingResp{err: err}
	}
	for _, t := range detached {
		t.resetSub()
	}
	if c.listen.OnDisconnect != nil {
		c.listen.OnDisconnect(err)
	}
}

// sweepLoop periodically expires pending requests which were not
// acknowledged in time.
func (c *Client) sweepLoop() {
	ticker := time.NewTicker(requestSweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSweep:
			return
		case now := <-ticker.C:
			var expired []*pendingReq
			c.mu.Lock()
			for id, r := range c.pending {
				if now.Sub(r.ts) >= requestExpireAfter {
					delete(c.pending, id)
					expired = append(expired, r)
				}
			}
			c.mu.Unlock()
			for _, r := range expired {
				r.resp <- pendingResp{err: types.ErrTimeout}
			}
		}
	}
}

// send serializes and writes a message without waiting for an
// acknowledgement.
func (c *Client) send(msg *ClientComMessage) error {
	out, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.SendText(string(out))
}

// sendWithAck writes a message and waits for the server response with a
// matching id. A {ctrl} response with code 400 or above is returned
// together with a ServerError. The id must be non-empty.
func (c *Client) sendWithAck(ctx context.Context, msg *ClientComMessage, id, topic string) (*ServerComMessage, error) {
	if id == "" {
		return nil, types.ErrExhausted
	}

	req := &pendingReq{
		id:    id,
		topic: topic,
		ts:    time.Now(),
		resp:  make(chan pendingResp, 1),
	}
	c.mu.Lock()
	c.pending[id] = req
	c.mu.Unlock()

	if err := c.send(msg); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case r := <-req.resp:
		if r.err != nil {
			return nil, r.err
		}
		if ctrl := r.msg.Ctrl; ctrl != nil && ctrl.Code >= 400 {
			return r.msg, &types.ServerError{Code: ctrl.Code, Text: ctrl.Text, Topic: ctrl.Topic}
		}
		return r.msg, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// resolve hands a server response to the pending request with the matching
// id. Returns false if no request was waiting.
func (c *Client) resolve(id string, msg *ServerComMessage) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	req.resp <- pendingResp{msg: msg}
	return true
}

// dispatch parses a raw payload from the channel and routes it. An empty
// payload is a transport keep-alive, a bare "0" is a liveness probe.
func (c *Client) dispatch(raw []byte) {
	if len(raw) == 0 {
		return
	}
	if len(raw) == 1 && raw[0] == '0' {
		if c.listen.OnNetworkProbe != nil {
			c.listen.OnNetworkProbe()
		}
		return
	}

	msg, err := parseServerMessage(raw)
	if err != nil {
		logs.Warn.Println("failed to parse message:", err)
		return
	}
	if c.listen.OnMessage != nil {
		c.listen.OnMessage(msg)
	}

	switch {
	case msg.Ctrl != nil:
		c.dispatchCtrl(msg)
	case msg.Meta != nil:
		if t := c.cacheGetTopic(msg.Meta.Topic); t != nil {
			t.routeMeta(msg.Meta)
		}
		c.resolve(msg.Meta.Id, msg)
	case msg.Data != nil:
		if t := c.cacheGetTopic(msg.Data.Topic); t != nil {
			t.routeData(msg.Data)
		}
		if c.listen.OnDataMessage != nil {
			c.listen.OnDataMessage(msg.Data)
		}
	case msg.Pres != nil:
		if t := c.cacheGetTopic(msg.Pres.Topic); t != nil {
			t.routePres(msg.Pres)
		}
		if c.listen.OnPresMessage != nil {
			c.listen.OnPresMessage(msg.Pres)
		}
	case msg.Info != nil:
		if t := c.cacheGetTopic(msg.Info.Topic); t != nil {
			t.routeInfo(msg.Info)
		}
		if c.listen.OnInfoMessage != nil {
			c.listen.OnInfoMessage(msg.Info)
		}
	default:
		logs.Warn.Println("unknown message kind", string(raw))
	}
}

// dispatchCtrl routes a {ctrl} message: applies its side effects to the
// addressed topic, then resolves the pending request.
func (c *Client) dispatchCtrl(msg *ServerComMessage) {
	ctrl := msg.Ctrl
	if t := c.cacheGetTopic(ctrl.Topic); t != nil {
		switch {
		case ctrl.Code == 205 && ctrl.Text == "evicted":
			t.resetSub()
		case ctrl.StringParam("what") == "data":
			count, _ := ctrl.IntParam("count")
			t.allMessagesReceived(count)
		case ctrl.StringParam("what") == "sub":
			// No subscriptions to report.
			t.processMetaSub(nil)
		}
	}

	if !c.resolve(ctrl.Id, msg) && c.listen.OnCtrlMessage != nil {
		c.listen.OnCtrlMessage(ctrl)
	}
}

// userAgent builds the ua string reported to the server.
func (c *Client) userAgent() string {
	ua := LibraryID + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
	if c.cfg.AppName != "" {
		ua = c.cfg.AppName + " " + ua
	}
	return ua
}

func (c *Client) platform() string {
	if c.cfg.Platform != "" {
		return c.cfg.Platform
	}
	switch runtime.GOOS {
	case "android":
		return "android"
	case "ios":
		return "ios"
	}
	return "web"
}

// hello performs the protocol handshake. A successful handshake resets the
// reconnection backoff and records the server parameters.
func (c *Client) hello(ctx context.Context) error {
	msg := &ClientComMessage{Hi: &MsgClientHi{
		Id:        c.nextID(),
		UserAgent: c.userAgent(),
		Version:   Version,
		DeviceID:  c.cfg.DeviceID,
		Lang:      c.cfg.Lang,
		Platform:  c.platform(),
	}}
	resp, err := c.sendWithAck(ctx, msg, msg.Hi.Id, "")
	if err != nil {
		var srvErr *types.ServerError
		if errors.As(err, &srvErr) && c.listen.OnConnect != nil {
			c.listen.OnConnect(srvErr.Code, srvErr.Text, nil)
		}
		return err
	}
	ctrl := resp.Ctrl
	if ctrl == nil {
		return errors.New("invalid response to handshake")
	}

	params, _ := ctrl.Params.(map[string]any)
	c.mu.Lock()
	c.serverParams = params
	c.mu.Unlock()
	c.conn.ResetBackoff()

	if c.listen.OnConnect != nil {
		c.listen.OnConnect(ctrl.Code, ctrl.Text, params)
	}
	return nil
}

// loginSuccessful records the outcome of an authentication attempt. A code
// in the 300 range means more credentials are required and the session
// remains unauthenticated.
func (c *Client) loginSuccessful(ctrl *MsgServerCtrl) {
	c.mu.Lock()
	c.authenticated = ctrl.Code < 300
	if user := ctrl.StringParam("user"); user != "" {
		c.myUID = user
	}
	if token := ctrl.StringParam("token"); token != "" {
		expires, _ := ctrl.TimeParam("expires")
		c.authToken = &AuthToken{Token: token, Expires: expires}
	}
	c.mu.Unlock()

	if c.listen.OnLogin != nil {
		c.listen.OnLogin(ctrl.Code, ctrl.Text)
	}
}

// Login authenticates the session.
func (c *Client) Login(ctx context.Context, scheme string, secret []byte, cred []MsgCredClient) (*MsgServerCtrl, error) {
	msg := &ClientComMessage{Login: &MsgClientLogin{
		Id:     c.nextID(),
		Scheme: scheme,
		Secret: secret,
		Cred:   cred,
	}}
	resp, err := c.sendWithAck(ctx, msg, msg.Login.Id, "")
	if err != nil {
		return nil, err
	}
	if resp.Ctrl != nil {
		c.loginSuccessful(resp.Ctrl)
	}
	return resp.Ctrl, nil
}

// LoginBasic authenticates the session with a login name and a password.
func (c *Client) LoginBasic(ctx context.Context, uname, password string) (*MsgServerCtrl, error) {
	return c.Login(ctx, "basic", []byte(uname+":"+password), nil)
}

// LoginToken authenticates the session with a token from a previous login.
func (c *Client) LoginToken(ctx context.Context, token string) (*MsgServerCtrl, error) {
	return c.Login(ctx, "token", []byte(token), nil)
}

// CreateAccount creates or updates a user account. With login set the
// session is authenticated as the new user.
func (c *Client) CreateAccount(ctx context.Context, user, scheme string, secret []byte, login bool,
	desc *MsgSetDesc, tags []string, cred []MsgCredClient) (*MsgServerCtrl, error) {

	if user == "" {
		user = "new"
	}
	msg := &ClientComMessage{Acc: &MsgClientAcc{
		Id:     c.nextID(),
		User:   user,
		Scheme: scheme,
		Secret: secret,
		Login:  login,
		Desc:   desc,
		Tags:   tags,
		Cred:   cred,
	}}
	resp, err := c.sendWithAck(ctx, msg, msg.Acc.Id, "")
	if err != nil {
		return nil, err
	}
	if login && resp.Ctrl != nil {
		c.loginSuccessful(resp.Ctrl)
	}
	return resp.Ctrl, nil
}

// CreateAccountBasic creates a new account with the basic authentication
// scheme and logs it in.
func (c *Client) CreateAccountBasic(ctx context.Context, uname, password string,
	desc *MsgSetDesc, tags []string, cred []MsgCredClient) (*MsgServerCtrl, error) {
	return c.CreateAccount(ctx, "new", "basic", []byte(uname+":"+password), true, desc, tags, cred)
}

// UpdateAccountSecret changes the authentication secret of an account.
func (c *Client) UpdateAccountSecret(ctx context.Context, user, scheme string, secret []byte) (*MsgServerCtrl, error) {
	msg := &ClientComMessage{Acc: &MsgClientAcc{
		Id:     c.nextID(),
		User:   user,
		Scheme: scheme,
		Secret: secret,
	}}
	resp, err := c.sendWithAck(ctx, msg, msg.Acc.Id, "")
	if err != nil {
		return nil, err
	}
	return resp.Ctrl, nil
}

// Raw protocol operations. Topics use them internally; applications
// normally call the corresponding Topic methods instead.

// Subscribe sends a subscription request to the named topic.
func (c *Client) Subscribe(ctx context.Context, topic string, set *MsgSetQuery, get *MsgGetQuery) (*ServerComMessage, error) {
	msg := &ClientComMessage{Sub: &MsgClientSub{
		Id:    c.nextID(),
		Topic: topic,
		Set:   set,
		Get:   get,
	}}
	return c.sendWithAck(ctx, msg, msg.Sub.Id, topic)
}

// Leave detaches the session from the topic; with unsub the subscription
// itself is also deleted.
func (c *Client) Leave(ctx context.Context, topic string, unsub bool) (*ServerComMessage, error) {
	msg := &ClientComMessage{Leave: &MsgClientLeave{
		Id:    c.nextID(),
		Topic: topic,
		Unsub: unsub,
	}}
	return c.sendWithAck(ctx, msg, msg.Leave.Id, topic)
}

// Publish sends a message to the topic.
func (c *Client) Publish(ctx context.Context, topic string, noEcho bool, head map[string]any, content any) (*ServerComMessage, error) {
	if c.cfg.Formatter != nil {
		var extra map[string]any
		content, extra = c.cfg.Formatter.FormatContent(content)
		if len(extra) > 0 {
			merged := make(map[string]any, len(head)+len(extra))
			for k, v := range head {
				merged[k] = v
			}
			for k, v := range extra {
				merged[k] = v
			}
			head = merged
		}
	}
	msg := &ClientComMessage{Pub: &MsgClientPub{
		Id:      c.nextID(),
		Topic:   topic,
		NoEcho:  noEcho,
		Head:    head,
		Content: content,
	}}
	return c.sendWithAck(ctx, msg, msg.Pub.Id, topic)
}

// GetMeta queries topic metadata or message history.
func (c *Client) GetMeta(ctx context.Context, topic string, query *MsgGetQuery) (*ServerComMessage, error) {
	msg := &ClientComMessage{Get: &MsgClientGet{
		Id:          c.nextID(),
		Topic:       topic,
		MsgGetQuery: *query,
	}}
	return c.sendWithAck(ctx, msg, msg.Get.Id, topic)
}

// SetMeta updates topic metadata.
func (c *Client) SetMeta(ctx context.Context, topic string, params *MsgSetQuery) (*ServerComMessage, error) {
	msg := &ClientComMessage{Set: &MsgClientSet{
		Id:          c.nextID(),
		Topic:       topic,
		MsgSetQuery: *params,
	}}
	return c.sendWithAck(ctx, msg, msg.Set.Id, topic)
}

// DelMessages deletes message ranges in a topic, optionally for all users.
func (c *Client) DelMessages(ctx context.Context, topic string, ranges []MsgDelRange, hard bool) (*ServerComMessage, error) {
	msg := &ClientComMessage{Del: &MsgClientDel{
		Id:     c.nextID(),
		Topic:  topic,
		What:   "msg",
		DelSeq: ranges,
		Hard:   hard,
	}}
	return c.sendWithAck(ctx, msg, msg.Del.Id, topic)
}

// DelTopic deletes the topic for all users.
func (c *Client) DelTopic(ctx context.Context, topic string, hard bool) (*ServerComMessage, error) {
	msg := &ClientComMessage{Del: &MsgClientDel{
		Id:    c.nextID(),
		Topic: topic,
		What:  "topic",
		Hard:  hard,
	}}
	resp, err := c.sendWithAck(ctx, msg, msg.Del.Id, topic)
	if err == nil {
		if t := c.cacheGetTopic(topic); t != nil {
			t.gone()
		}
	}
	return resp, err
}

// DelSubscription evicts a user from a topic.
func (c *Client) DelSubscription(ctx context.Context, topic, user string) (*ServerComMessage, error) {
	msg := &ClientComMessage{Del: &MsgClientDel{
		Id:    c.nextID(),
		Topic: topic,
		What:  "sub",
		User:  user,
	}}
	return c.sendWithAck(ctx, msg, msg.Del.Id, topic)
}

// DelCredential deletes an account credential, such as a spare email.
func (c *Client) DelCredential(ctx context.Context, method, value string) (*ServerComMessage, error) {
	msg := &ClientComMessage{Del: &MsgClientDel{
		Id:   c.nextID(),
		What: "cred",
		Cred: &MsgCredClient{Method: method, Value: value},
	}}
	return c.sendWithAck(ctx, msg, msg.Del.Id, "")
}

// DelCurrentUser deletes or disables the account of the current user.
func (c *Client) DelCurrentUser(ctx context.Context, hard bool) (*ServerComMessage, error) {
	msg := &ClientComMessage{Del: &MsgClientDel{
		Id:   c.nextID(),
		What: "user",
		Hard: hard,
	}}
	resp, err := c.sendWithAck(ctx, msg, msg.Del.Id, "")
	if err == nil {
		c.mu.Lock()
		c.authenticated = false
		c.myUID = ""
		c.authToken = nil
		c.mu.Unlock()
	}
	return resp, err
}

// Note sends a receipt or a typing notification. Not acknowledged by the
// server.
func (c *Client) Note(topic, what string, seq int) error {
	return c.send(&ClientComMessage{Note: &MsgClientNote{
		Topic: topic,
		What:  what,
		SeqId: seq,
	}})
}

// Topic cache.

// cacheGetTopic returns a cached topic by name, nil if not cached.
func (c *Client) cacheGetTopic(name string) *Topic {
	if name == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[name]
}

func (c *Client) cachePutTopic(t *Topic) {
	c.mu.Lock()
	c.topics[t.name] = t
	c.mu.Unlock()
}

func (c *Client) cacheDelTopic(name string) {
	c.mu.Lock()
	delete(c.topics, name)
	c.mu.Unlock()
}

// renameTopic re-keys a cached topic after the server assigned the real
// name to a locally created one.
func (c *Client) renameTopic(oldName string, t *Topic) {
	c.mu.Lock()
	if oldName != "" {
		delete(c.topics, oldName)
	}
	c.topics[t.name] = t
	c.mu.Unlock()
}

// Topic returns the named topic, creating and caching it if needed.
func (c *Client) Topic(name string) *Topic {
	if t := c.cacheGetTopic(name); t != nil {
		return t
	}
	t := c.newTopic(name)
	c.cachePutTopic(t)
	return t
}

// GetMeTopic returns the 'me' topic: account settings and the contact list.
func (c *Client) GetMeTopic() *Topic {
	return c.Topic(TopicMe)
}

// GetFndTopic returns the 'fnd' topic used for user and topic discovery.
func (c *Client) GetFndTopic() *Topic {
	return c.Topic(TopicFnd)
}

// NewGroupTopic returns an unsynchronized group topic with a provisional
// local name. The server assigns the permanent name at subscription.
// With channel set the topic is created as a channel.
func (c *Client) NewGroupTopic(channel bool) *Topic {
	name := TopicNew
	if channel {
		name = TopicNewChan
	}
	return c.newTopic(name + c.nextID())
}

// FilterTopics returns cached topics filtered by the supplied predicate.
// A nil predicate matches all cached topics.
func (c *Client) FilterTopics(match func(t *Topic) bool) []*Topic {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res []*Topic
	for _, t := range c.topics {
		if match == nil || match(t) {
			res = append(res, t)
		}
	}
	return res
}
