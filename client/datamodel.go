/******************************************************************************
 *
 *  Description :
 *
 *    Wire protocol structures. Client to server messages are serialized for
 *    sending; server to client messages are parsed from the channel. Absent,
 *    false, and empty fields are omitted on the wire.
 *
 *****************************************************************************/

package client

import (
	"encoding/json"
	"time"
)

// MsgGetOpts defines Get query parameters.
type MsgGetOpts struct {
	// Optional user ID to return result(s) for one user.
	User string `json:"user,omitempty"`
	// Optional topic name to return result(s) for one topic.
	Topic string `json:"topic,omitempty"`
	// Return results modified since this timestamp.
	IfModifiedSince *time.Time `json:"ims,omitempty"`
	// Load messages/ranges with IDs equal or greater than this (inclusive or closed).
	SinceId int `json:"since,omitempty"`
	// Load messages/ranges with IDs lower than this (exclusive or open).
	BeforeId int `json:"before,omitempty"`
	// Limit the number of messages loaded.
	Limit int `json:"limit,omitempty"`
}

// MsgGetQuery is a topic metadata or data query.
type MsgGetQuery struct {
	What string `json:"what"`

	// Parameters of "desc" request: IfModifiedSince.
	Desc *MsgGetOpts `json:"desc,omitempty"`
	// Parameters of "sub" request: User, Topic, IfModifiedSince, Limit.
	Sub *MsgGetOpts `json:"sub,omitempty"`
	// Parameters of "data" request: Since, Before, Limit.
	Data *MsgGetOpts `json:"data,omitempty"`
	// Parameters of "del" request: Since, Before, Limit.
	Del *MsgGetOpts `json:"del,omitempty"`
}

// MsgSetSub is a payload in set.sub request to update current subscription or
// invite another user.
type MsgSetSub struct {
	// User affected by this request. Default (empty): current user.
	User string `json:"user,omitempty"`
	// Access mode change, either Given or Want depending on context.
	Mode string `json:"mode,omitempty"`
}

// MsgDefaultAcsMode is a topic default access mode.
type MsgDefaultAcsMode struct {
	Auth string `json:"auth,omitempty"`
	Anon string `json:"anon,omitempty"`
}

// MsgSetDesc is a C2S payload in set.what == "desc" and acc messages.
type MsgSetDesc struct {
	DefaultAcs *MsgDefaultAcsMode `json:"defacs,omitempty"`
	Public     any                `json:"public,omitempty"`
	// Per-subscription private data.
	Private any `json:"private,omitempty"`
}

// MsgCredClient is an account credential such as email or phone number.
type MsgCredClient struct {
	// Credential type, i.e. `email` or `tel`.
	Method string `json:"meth,omitempty"`
	// Value to verify, i.e. `user@example.com` or `+18003287448`.
	Value string `json:"val,omitempty"`
	// Verification response.
	Response string `json:"resp,omitempty"`
	// Request parameters, passed to the validator without interpretation.
	Params map[string]any `json:"params,omitempty"`
}

// MsgSetQuery is an update to topic metadata: Desc, subscriptions, or tags.
type MsgSetQuery struct {
	// Topic metadata, new topic & new subscriptions only.
	Desc *MsgSetDesc `json:"desc,omitempty"`
	// Subscription parameters.
	Sub *MsgSetSub `json:"sub,omitempty"`
	// Indexable tags for user discovery.
	Tags []string `json:"tags,omitempty"`
	// Update to account credentials.
	Cred *MsgCredClient `json:"cred,omitempty"`
}

// MsgDelRange is either an individual ID (HiId=0) or a range of deleted IDs,
// low end inclusive (closed), high-end exclusive (open): [LowId .. HiId).
type MsgDelRange struct {
	LowId int `json:"low,omitempty"`
	HiId  int `json:"hi,omitempty"`
}

// Client to Server (C2S) messages.

// MsgClientHi is a handshake {hi} message.
type MsgClientHi struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// User agent.
	UserAgent string `json:"ua,omitempty"`
	// Protocol version, i.e. "0.13".
	Version string `json:"ver,omitempty"`
	// Client's unique device ID.
	DeviceID string `json:"dev,omitempty"`
	// ISO 639-1 human language of the connected device.
	Lang string `json:"lang,omitempty"`
	// Platform code: ios, android, web.
	Platform string `json:"platf,omitempty"`
}

// MsgClientAcc is an {acc} message for creating or updating a user account.
type MsgClientAcc struct {
	Id string `json:"id,omitempty"`
	// "new" to create a new user or UserId to update a user; default: current user.
	User string `json:"user,omitempty"`
	// Authentication token for resetting the password.
	Token []byte `json:"token,omitempty"`
	// The initial authentication scheme the account can use.
	Scheme string `json:"scheme,omitempty"`
	// Shared secret.
	Secret []byte `json:"secret,omitempty"`
	// Authenticate session with the newly created account.
	Login bool `json:"login,omitempty"`
	// Indexable tags for user discovery.
	Tags []string `json:"tags,omitempty"`
	// User initialization data when creating a new user, otherwise ignored.
	Desc *MsgSetDesc `json:"desc,omitempty"`
	// Credentials to verify (email or phone or captcha).
	Cred []MsgCredClient `json:"cred,omitempty"`
}

// MsgClientLogin is a login {login} message.
type MsgClientLogin struct {
	Id string `json:"id,omitempty"`
	// Authentication scheme.
	Scheme string `json:"scheme,omitempty"`
	// Shared secret.
	Secret []byte `json:"secret"`
	// Credentials being verified (email or phone or captcha etc.).
	Cred []MsgCredClient `json:"cred,omitempty"`
}

// MsgClientSub is a subscription request {sub} message.
type MsgClientSub struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`

	// Mirrors {set}.
	Set *MsgSetQuery `json:"set,omitempty"`
	// Mirrors {get}.
	Get *MsgGetQuery `json:"get,omitempty"`
}

// MsgClientLeave is an unsubscribe {leave} request message.
type MsgClientLeave struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	Unsub bool   `json:"unsub,omitempty"`
}

// MsgClientPub is a request to publish data to topic subscribers {pub}.
type MsgClientPub struct {
	Id      string         `json:"id,omitempty"`
	Topic   string         `json:"topic"`
	NoEcho  bool           `json:"noecho,omitempty"`
	Head    map[string]any `json:"head,omitempty"`
	Content any            `json:"content"`
}

// MsgClientGet is a query of topic state {get}.
type MsgClientGet struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	MsgGetQuery
}

// MsgClientSet is an update of topic state {set}.
type MsgClientSet struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	MsgSetQuery
}

// MsgClientDel deletes messages, subscription, topic or user {del}.
type MsgClientDel struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic,omitempty"`
	// What to delete:
	// * "msg" to delete messages (default)
	// * "topic" to delete the topic
	// * "sub" to delete a subscription to topic
	// * "user" to delete or disable user
	// * "cred" to delete a credential (email or phone)
	What string `json:"what"`
	// Delete messages with these IDs (either one by one or a set of ranges).
	DelSeq []MsgDelRange `json:"delseq,omitempty"`
	// User ID of the user or subscription to delete.
	User string `json:"user,omitempty"`
	// Credential to delete.
	Cred *MsgCredClient `json:"cred,omitempty"`
	// Request to hard-delete objects (i.e. delete messages for all users).
	Hard bool `json:"hard,omitempty"`
}

// MsgClientNote is a client-generated notification for topic subscribers
// {note}. It carries no Id: the server does not acknowledge it.
type MsgClientNote struct {
	Topic string `json:"topic"`
	// What is being reported: "recv" - message received, "read" - message
	// read, "kp" - typing notification.
	What string `json:"what"`
	// Server-issued message ID being reported.
	SeqId int `json:"seq,omitempty"`
}

// ClientComMessage is a wrapper for client messages.
type ClientComMessage struct {
	Hi    *MsgClientHi    `json:"hi,omitempty"`
	Acc   *MsgClientAcc   `json:"acc,omitempty"`
	Login *MsgClientLogin `json:"login,omitempty"`
	Sub   *MsgClientSub   `json:"sub,omitempty"`
	Leave *MsgClientLeave `json:"leave,omitempty"`
	Pub   *MsgClientPub   `json:"pub,omitempty"`
	Get   *MsgClientGet   `json:"get,omitempty"`
	Set   *MsgClientSet   `json:"set,omitempty"`
	Del   *MsgClientDel   `json:"del,omitempty"`
	Note  *MsgClientNote  `json:"note,omitempty"`
}

// Server to client (S2C) messages.

// MsgLastSeenInfo contains info on the user's last appearance online.
type MsgLastSeenInfo struct {
	// Timestamp of user's last appearance online.
	When *time.Time `json:"when,omitempty"`
	// User agent of the device when the user was last online.
	UserAgent string `json:"ua,omitempty"`
}

// MsgCredServer is a server-reported account credential.
type MsgCredServer struct {
	// Credential type, i.e. `email` or `tel`.
	Method string `json:"meth,omitempty"`
	// Credential value, i.e. `user@example.com`.
	Value string `json:"val,omitempty"`
	// Indicates that the credential is validated.
	Done bool `json:"done,omitempty"`
}

// MsgAccessMode is the wire form of an access mode.
type MsgAccessMode struct {
	// Access mode requested by the user.
	Want string `json:"want,omitempty"`
	// Access mode granted to the user by the admin.
	Given string `json:"given,omitempty"`
	// Cumulative access mode want & given.
	Mode string `json:"mode,omitempty"`
}

// MsgTopicDesc is a topic description, S2C in a {meta} message.
type MsgTopicDesc struct {
	CreatedAt *time.Time `json:"created,omitempty"`
	UpdatedAt *time.Time `json:"updated,omitempty"`
	// Timestamp of the last message.
	TouchedAt *time.Time `json:"touched,omitempty"`

	// If the group topic is online.
	Online bool `json:"online,omitempty"`

	DefaultAcs *MsgDefaultAcsMode `json:"defacs,omitempty"`
	// Actual access mode.
	Acs *MsgAccessMode `json:"acs,omitempty"`
	// Max message ID.
	SeqId     int `json:"seq,omitempty"`
	ReadSeqId int `json:"read,omitempty"`
	RecvSeqId int `json:"recv,omitempty"`
	// Id of the last delete operation as seen by the requesting user.
	DelId  int `json:"clear,omitempty"`
	Public any `json:"public,omitempty"`
	// Per-subscription private data.
	Private any `json:"private,omitempty"`
}

// MsgTopicSub is topic subscription details, sent in a {meta} message.
type MsgTopicSub struct {
	// Timestamp when the subscription was last updated.
	UpdatedAt *time.Time `json:"updated,omitempty"`
	// Timestamp when the subscription was deleted.
	DeletedAt *time.Time `json:"deleted,omitempty"`

	// If the subscriber/topic is online.
	Online bool `json:"online,omitempty"`

	// Access mode. Topic admins receive the full info, non-admins receive
	// just the cumulative mode.
	Acs MsgAccessMode `json:"acs,omitempty"`
	// ID of the message reported by the given user as read.
	ReadSeqId int `json:"read,omitempty"`
	// ID of the message reported by the given user as received.
	RecvSeqId int `json:"recv,omitempty"`
	// Topic's public data.
	Public any `json:"public,omitempty"`
	// User's own private data per topic.
	Private any `json:"private,omitempty"`

	// Response to non-'me' topic: UID of the subscribed user.
	User string `json:"user,omitempty"`

	// 'me' topic response only:

	// Topic name of this subscription.
	Topic string `json:"topic,omitempty"`
	// Timestamp of the last message in the topic.
	TouchedAt *time.Time `json:"touched,omitempty"`
	// ID of the last {data} message in the topic.
	SeqId int `json:"seq,omitempty"`
	// Id of the latest delete operation.
	DelId int `json:"clear,omitempty"`

	// P2P topics only: other user's last online timestamp & user agent.
	LastSeen *MsgLastSeenInfo `json:"seen,omitempty"`
}

// MsgDelValues describes the server-reported state of a delete-messages
// request.
type MsgDelValues struct {
	DelId  int           `json:"clear,omitempty"`
	DelSeq []MsgDelRange `json:"delseq,omitempty"`
}

// MsgServerCtrl is a server control message {ctrl}.
type MsgServerCtrl struct {
	Id     string `json:"id,omitempty"`
	Topic  string `json:"topic,omitempty"`
	Params any    `json:"params,omitempty"`

	Code      int       `json:"code"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// StringParam fetches a string value from ctrl params by name.
func (ctrl *MsgServerCtrl) StringParam(name string) string {
	if params, ok := ctrl.Params.(map[string]any); ok {
		if val, ok := params[name].(string); ok {
			return val
		}
	}
	return ""
}

// IntParam fetches an integer value from ctrl params by name.
func (ctrl *MsgServerCtrl) IntParam(name string) (int, bool) {
	if params, ok := ctrl.Params.(map[string]any); ok {
		// encoding/json decodes numbers in untyped containers as float64.
		if val, ok := params[name].(float64); ok {
			return int(val), true
		}
	}
	return 0, false
}

// TimeParam fetches a timestamp value from ctrl params by name.
func (ctrl *MsgServerCtrl) TimeParam(name string) (time.Time, bool) {
	if params, ok := ctrl.Params.(map[string]any); ok {
		if val, ok := params[name].(string); ok {
			if ts, err := time.Parse(time.RFC3339, val); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// MsgServerData is a server {data} message.
type MsgServerData struct {
	Topic string `json:"topic"`
	// ID of the user who originated the message as {pub}; could be empty if
	// sent by the system.
	From      string         `json:"from,omitempty"`
	Timestamp time.Time      `json:"ts"`
	SeqId     int            `json:"seq"`
	Head      map[string]any `json:"head,omitempty"`
	Content   any            `json:"content"`
}

// MsgServerPres is a presence notification {pres}.
type MsgServerPres struct {
	Topic     string        `json:"topic"`
	Src       string        `json:"src,omitempty"`
	What      string        `json:"what"`
	UserAgent string        `json:"ua,omitempty"`
	SeqId     int           `json:"seq,omitempty"`
	DelId     int           `json:"clear,omitempty"`
	DelSeq    []MsgDelRange `json:"delseq,omitempty"`
	AcsTarget string        `json:"tgt,omitempty"`
	AcsActor  string        `json:"act,omitempty"`
	// Acs or a delta Acs.
	Acs *MsgAccessMode `json:"dacs,omitempty"`
}

// MsgServerMeta is a topic metadata {meta} update.
type MsgServerMeta struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`

	Timestamp *time.Time `json:"ts,omitempty"`

	// Topic description.
	Desc *MsgTopicDesc `json:"desc,omitempty"`
	// Subscriptions as an array of objects.
	Sub []MsgTopicSub `json:"sub,omitempty"`
	// Delete ID and the ranges of IDs of deleted messages.
	Del *MsgDelValues `json:"del,omitempty"`
	// User discovery tags.
	Tags []string `json:"tags,omitempty"`
	// Account credentials, 'me' only.
	Cred []*MsgCredServer `json:"cred,omitempty"`
}

// MsgServerInfo is a forwarded client-generated notification {info}.
type MsgServerInfo struct {
	Topic string `json:"topic"`
	// ID of the user who originated the message.
	From string `json:"from"`
	// What is being reported: "recv" - message received, "read" - message
	// read, "kp" - typing notification.
	What string `json:"what"`
	// Server-issued message ID being reported.
	SeqId int `json:"seq,omitempty"`
}

// ServerComMessage is a wrapper for server-side messages.
type ServerComMessage struct {
	Ctrl *MsgServerCtrl `json:"ctrl,omitempty"`
	Data *MsgServerData `json:"data,omitempty"`
	Meta *MsgServerMeta `json:"meta,omitempty"`
	Pres *MsgServerPres `json:"pres,omitempty"`
	Info *MsgServerInfo `json:"info,omitempty"`
}

// parseServerMessage decodes a wire envelope. Embedded timestamps are
// restored to time.Time by encoding/json; access mode strings are restored
// to the typed form by the topic routers.
func parseServerMessage(raw []byte) (*ServerComMessage, error) {
	var msg ServerComMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
