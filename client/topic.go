/******************************************************************************
 *
 *  Description :
 *
 *    Topic: a named communication channel with cached description,
 *    subscribers, and ordered message history. Incoming server messages are
 *    routed here by the owning client.
 *
 *****************************************************************************/

package client

import (
	"context"
	"strings"
	"time"

	"github.com/tinode/go-client/cbuffer"
	"github.com/tinode/go-client/logs"
	"github.com/tinode/go-client/types"
)

// Predefined topic names and name prefixes.
const (
	// TopicMe is the account topic: own profile and the contact list.
	TopicMe = "me"
	// TopicFnd is the discovery topic for finding users and topics.
	TopicFnd = "fnd"
	// TopicSys is the special system topic for reaching the administrator.
	TopicSys = "sys"
	// TopicNew is the name prefix of a group topic to be created.
	TopicNew = "new"
	// TopicNewChan is the name prefix of a channel topic to be created.
	TopicNewChan = "nch"

	// TopicUsrPrefix starts peer to peer topic names.
	TopicUsrPrefix = "usr"
	// TopicGrpPrefix starts group topic names.
	TopicGrpPrefix = "grp"
	// TopicChnPrefix starts channel topic names.
	TopicChnPrefix = "chn"
)

// LocalSeqBase is the first sequence id of the locally issued range.
// Unsent drafts get provisional ids at or above this value; server-issued
// ids are always below it.
const LocalSeqBase = 0xFFFFFFF

// DelChar marks a field as deleted in partial updates.
const DelChar = "␡"

// topicCat is the kind of a topic, decided by its name.
type topicCat int

const (
	catMe topicCat = iota
	catFnd
	catP2P
	catGrp
	catSys
)

// topicCategory derives the topic kind from its name.
func topicCategory(name string) topicCat {
	switch {
	case name == TopicMe:
		return catMe
	case name == TopicFnd:
		return catFnd
	case name == TopicSys:
		return catSys
	case strings.HasPrefix(name, TopicUsrPrefix):
		return catP2P
	}
	return catGrp
}

// Subscription is a cached record of one subscriber of a topic, or, in the
// 'me' topic, of one subscribed-to contact.
type Subscription struct {
	// User id of the subscriber. Empty in 'me' contact records.
	User string
	// Topic name. Set in 'me' contact records only.
	Topic string

	// Timestamp of the last subscription update.
	Updated *time.Time
	// Timestamp of the last message in the topic, 'me' contacts only.
	TouchedAt *time.Time

	// Access mode of the subscription.
	Mode types.AccessMode

	Public  any
	Private any

	// Online presence.
	Online bool
	// Last seen timestamp and user agent, p2p contacts only.
	LastSeen *MsgLastSeenInfo

	// Watermarks: greatest ids of the last message, the last received and
	// the last read message, and the last delete transaction.
	SeqID  int
	RecvID int
	ReadID int
	DelID  int

	// UnreadCount is the number of messages not yet read by this user,
	// 'me' contacts only.
	UnreadCount int
}

// TopicCallbacks are per-topic event callbacks. All are optional and are
// invoked from the client's routing goroutine.
type TopicCallbacks struct {
	// OnData is called when a message is added to the cache or the cache
	// content changes. A nil message signals a bulk change such as deletion.
	OnData func(msg *Message)
	// OnMeta is called for every raw {meta} message addressed to the topic.
	OnMeta func(meta *MsgServerMeta)
	// OnMetaDesc is called after the topic description was updated.
	OnMetaDesc func(t *Topic)
	// OnMetaSub is called for each updated subscription record.
	OnMetaSub func(sub *Subscription)
	// OnSubsUpdated is called after a batch of subscription updates with the
	// affected keys: user ids, or topic names in 'me'.
	OnSubsUpdated func(keys []string)
	// OnTagsUpdated is called when the topic tags change.
	OnTagsUpdated func(tags []string)
	// OnCredsUpdated is called when account credentials change, 'me' only.
	OnCredsUpdated func(creds []*MsgCredServer)
	// OnContactUpdate is called on a presence change of a contact, 'me'
	// only: what is the kind of change, sub is the affected contact.
	OnContactUpdate func(what string, sub *Subscription)
	// OnPres is called for every {pres} message after it was applied.
	OnPres func(pres *MsgServerPres)
	// OnInfo is called for every {info} message after it was applied.
	OnInfo func(info *MsgServerInfo)
	// OnAllMessagesReceived is called when the server reports that a data
	// query was fully served.
	OnAllMessagesReceived func(count int)
}

// Topic is a named channel for exchanging messages among its subscribers.
type Topic struct {
	c      *Client
	listen TopicCallbacks

	name string
	cat  topicCat

	created *time.Time
	updated *time.Time
	touched *time.Time

	acs    types.AccessMode
	defacs *MsgDefaultAcsMode

	public  any
	private any
	tags    []string
	online  bool

	// Watermarks: the greatest known message id, own received and read ids,
	// and the greatest delete transaction id.
	seq    int
	recv   int
	read   int
	maxDel int

	// The range of message ids present in the cache.
	maxSeq int
	minSeq int
	// noEarlierMsgs is set when the server confirmed there is nothing
	// older than minSeq.
	noEarlierMsgs bool

	// queuedSeqID is the next provisional id for unsent drafts.
	queuedSeqID int

	users    map[string]*Subscription
	messages *cbuffer.CBuffer[*Message]
	creds    []*MsgCredServer

	subscribed bool

	lastDescUpd *time.Time
	lastSubsUpd *time.Time
}

func (c *Client) newTopic(name string) *Topic {
	return &Topic{
		c:           c,
		name:        name,
		cat:         topicCategory(name),
		users:       make(map[string]*Subscription),
		messages:    cbuffer.New(compareMsgs, true),
		queuedSeqID: LocalSeqBase,
	}
}

// SetCallbacks installs the topic event callbacks. Not safe to call
// concurrently with message routing.
func (t *Topic) SetCallbacks(listen TopicCallbacks) {
	t.listen = listen
}

// Name returns the topic name.
func (t *Topic) Name() string {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.name
}

// IsSubscribed checks if the topic is attached to the server.
func (t *Topic) IsSubscribed() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.subscribed
}

// IsNew checks if the topic exists locally only, not yet on the server.
func (t *Topic) IsNew() bool {
	name := t.Name()
	return strings.HasPrefix(name, TopicNew) || strings.HasPrefix(name, TopicNewChan)
}

// IsChannel checks if the topic is a channel.
func (t *Topic) IsChannel() bool {
	return strings.HasPrefix(t.Name(), TopicChnPrefix)
}

// AccessMode returns the user's access mode on this topic.
func (t *Topic) AccessMode() types.AccessMode {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.acs
}

// Public returns the topic's public data.
func (t *Topic) Public() any {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.public
}

// Private returns the per-subscription private data.
func (t *Topic) Private() any {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.private
}

// Tags returns the topic's indexable tags.
func (t *Topic) Tags() []string {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.tags
}

// Online checks if the topic (or the p2p peer) is currently online.
func (t *Topic) Online() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.online
}

// CreatedAt returns the topic creation timestamp, nil if unknown.
func (t *Topic) CreatedAt() *time.Time {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.created
}

// UpdatedAt returns the timestamp of the last topic update, nil if unknown.
func (t *Topic) UpdatedAt() *time.Time {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.updated
}

// SeqID returns the greatest known server-issued message id.
func (t *Topic) SeqID() int {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.seq
}

// UnreadCount returns the number of messages after the own read pointer.
func (t *Topic) UnreadCount() int {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if n := t.seq - t.read; n > 0 {
		return n
	}
	return 0
}

func (t *Topic) maxMsgSeq() int {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.maxSeq
}

func (t *Topic) minMsgSeq() int {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.minSeq
}

func (t *Topic) maxDelID() int {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.maxDel
}

func (t *Topic) lastDescUpdate() *time.Time {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.lastDescUpd
}

func (t *Topic) lastSubsUpdate() *time.Time {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.lastSubsUpd
}

// GetSubscription returns a cached subscription record by key: user id, or
// topic name in 'me'.
func (t *Topic) GetSubscription(key string) *Subscription {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.users[key]
}

// ForEachSubscription calls fn for every cached subscription record.
func (t *Topic) ForEachSubscription(fn func(key string, sub *Subscription)) {
	t.c.mu.Lock()
	snapshot := make(map[string]*Subscription, len(t.users))
	for k, v := range t.users {
		snapshot[k] = v
	}
	t.c.mu.Unlock()
	for k, v := range snapshot {
		fn(k, v)
	}
}

// ForEachMessage calls fn for each cached entry with ids in [since, before),
// gaps included, in ascending order. Zero or negative bounds mean
// unbounded.
func (t *Topic) ForEachMessage(since, before int, fn func(msg *Message)) {
	t.c.mu.Lock()
	var snapshot []*Message
	t.messages.ForEach(0, 0, func(m *Message, _ int) {
		if (since <= 0 || m.Seq >= since) && (before <= 0 || m.Seq < before) {
			snapshot = append(snapshot, m)
		}
	})
	t.c.mu.Unlock()
	for _, m := range snapshot {
		fn(m)
	}
}

// GetMessage returns a cached message by sequence id, nil if not cached.
func (t *Topic) GetMessage(seq int) *Message {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	idx := t.messages.Find(&Message{Seq: seq}, false)
	if idx < 0 {
		return nil
	}
	return t.messages.GetAt(idx)
}

// MessageCount returns the number of cached entries, gaps included.
func (t *Topic) MessageCount() int {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.messages.Len()
}

// Subscribe attaches the topic to the server. For a locally created topic
// the server assigns the permanent name which replaces the provisional one.
func (t *Topic) Subscribe(ctx context.Context, set *MsgSetQuery, get *MsgGetQuery) error {
	if t.IsSubscribed() {
		return nil
	}
	name := t.Name()

	resp, err := t.c.Subscribe(ctx, name, set, get)
	if err != nil {
		return err
	}
	ctrl := resp.Ctrl
	if ctrl == nil {
		ctrl = &MsgServerCtrl{}
	}

	t.c.mu.Lock()
	t.subscribed = true
	wasNew := strings.HasPrefix(t.name, TopicNew) || strings.HasPrefix(t.name, TopicNewChan)
	oldName := t.name
	if wasNew && ctrl.Topic != "" && ctrl.Topic != t.name {
		t.name = ctrl.Topic
		t.cat = topicCategory(ctrl.Topic)
	}
	if wasNew && !ctrl.Timestamp.IsZero() {
		ts := ctrl.Timestamp
		t.created = &ts
		t.updated = &ts
	}
	newName := t.name
	t.c.mu.Unlock()

	if newName != oldName {
		t.c.renameTopic(oldName, t)
	} else {
		t.c.cachePutTopic(t)
	}

	// The server reports the negotiated access mode in ctrl params.
	if params, ok := ctrl.Params.(map[string]any); ok {
		if acs, ok := params["acs"].(map[string]any); ok {
			given, _ := acs["given"].(string)
			want, _ := acs["want"].(string)
			mode, _ := acs["mode"].(string)
			t.c.mu.Lock()
			t.acs = types.NewAccessMode(given, want, mode)
			t.c.mu.Unlock()
		}
	}

	// A newly created topic gets a contact record.
	if wasNew {
		if me := t.c.cacheGetTopic(TopicMe); me != nil {
			me.contactFromNewTopic(t, ctrl.Timestamp)
		}
	}
	return nil
}

// Leave detaches the topic from the server. With unsub the subscription is
// also deleted.
func (t *Topic) Leave(ctx context.Context, unsub bool) error {
	if !t.IsSubscribed() && !unsub {
		return types.ErrNotSubscribed
	}
	_, err := t.c.Leave(ctx, t.Name(), unsub)
	if err != nil {
		return err
	}
	t.resetSub()
	if unsub {
		t.gone()
	}
	return nil
}

// Delete deletes the topic on the server for all users.
func (t *Topic) Delete(ctx context.Context, hard bool) error {
	if t.IsSubscribed() {
		if err := t.Leave(ctx, false); err != nil {
			return err
		}
	}
	_, err := t.c.DelTopic(ctx, t.Name(), hard)
	return err
}

// GetMeta queries topic metadata or message history.
func (t *Topic) GetMeta(ctx context.Context, query *MsgGetQuery) error {
	_, err := t.c.GetMeta(ctx, t.Name(), query)
	return err
}

// SetMeta updates topic metadata on the server and applies the confirmed
// changes to the local cache.
func (t *Topic) SetMeta(ctx context.Context, params *MsgSetQuery) error {
	if params.Tags != nil {
		params.Tags = normalizeTags(params.Tags)
	}
	if t.cat == catFnd {
		// A new search query invalidates the old results.
		t.c.mu.Lock()
		t.users = make(map[string]*Subscription)
		t.c.mu.Unlock()
	}

	resp, err := t.c.SetMeta(ctx, t.Name(), params)
	if err != nil {
		return err
	}
	ctrl := resp.Ctrl
	if ctrl == nil {
		ctrl = &MsgServerCtrl{}
	}

	t.c.mu.Lock()
	if params.Sub != nil && params.Sub.User == "" && params.Sub.Mode != "" {
		// Own mode change confirmed. The server reports the resulting mode.
		if p, ok := ctrl.Params.(map[string]any); ok {
			if acs, ok := p["acs"].(map[string]any); ok {
				given, _ := acs["given"].(string)
				want, _ := acs["want"].(string)
				mode, _ := acs["mode"].(string)
				t.acs = types.NewAccessMode(given, want, mode)
			}
		} else {
			t.acs.UpdateWant(params.Sub.Mode)
		}
	}
	if params.Desc != nil {
		if params.Desc.Public != nil {
			t.public = params.Desc.Public
		}
		if params.Desc.Private != nil {
			t.private = params.Desc.Private
		}
		if params.Desc.DefaultAcs != nil {
			t.defacs = params.Desc.DefaultAcs
		}
	}
	var tags []string
	if params.Tags != nil {
		t.tags = params.Tags
		tags = params.Tags
	}
	t.c.mu.Unlock()

	if params.Cred != nil && t.cat == catMe {
		// The new credential is cached as pending until validated.
		t.processMetaCreds([]*MsgCredServer{{
			Method: params.Cred.Method,
			Value:  params.Cred.Value,
		}}, true)
	}

	if tags != nil && t.listen.OnTagsUpdated != nil {
		t.listen.OnTagsUpdated(tags)
	}
	return nil
}

// UpdateMode updates the own access mode on this topic. The update is a
// delta string such as "+P" or "-S", or a full replacement.
func (t *Topic) UpdateMode(ctx context.Context, upd string) error {
	return t.SetMeta(ctx, &MsgSetQuery{Sub: &MsgSetSub{Mode: upd}})
}

// Invite requests a subscription for another user with the given access
// mode.
func (t *Topic) Invite(ctx context.Context, user, mode string) error {
	return t.SetMeta(ctx, &MsgSetQuery{Sub: &MsgSetSub{User: user, Mode: mode}})
}

// Publishing.

// CreateMessage makes a local draft with a provisional sequence id and
// caches it. The draft is not sent until PublishMessage.
func (t *Topic) CreateMessage(content any, noEcho bool) *Message {
	t.c.mu.Lock()
	msg := &Message{
		Topic:   t.name,
		From:    t.c.myUID,
		Ts:      time.Now().UTC(),
		Seq:     t.queuedSeqID,
		Content: content,
		Status:  StatusQueued,
	}
	if noEcho {
		msg.noForwarding = true
	}
	t.queuedSeqID++
	t.messages.Put(msg)
	t.c.mu.Unlock()
	return msg
}

// PublishMessage sends a prepared draft. On success the provisional id is
// replaced with the server-issued one. On failure the draft stays cached
// with the failed status.
func (t *Topic) PublishMessage(ctx context.Context, msg *Message) error {
	if t.cat == catMe || t.cat == catFnd {
		return types.ErrOperationNotAllowed
	}
	if !t.IsSubscribed() {
		t.setMsgStatus(msg, StatusFailed)
		return types.ErrNotSubscribed
	}

	t.setMsgStatus(msg, StatusSending)
	resp, err := t.c.Publish(ctx, t.Name(), msg.noForwarding, msg.Head, msg.Content)

	t.c.mu.Lock()
	cancelled := msg.cancelled
	t.c.mu.Unlock()
	if cancelled {
		// Recalled while in transit: drop it regardless of the outcome.
		t.removeMessage(msg.Seq)
		return nil
	}

	if err != nil {
		t.setMsgStatus(msg, StatusFailed)
		return err
	}

	ctrl := resp.Ctrl
	if ctrl == nil {
		ctrl = &MsgServerCtrl{}
	}
	seq, _ := ctrl.IntParam("seq")
	t.c.mu.Lock()
	if seq > 0 {
		t.swapMessageID(msg, seq)
		msg.Ts = ctrl.Timestamp
		if seq > t.seq {
			t.seq = seq
		}
		if seq > t.maxSeq {
			t.maxSeq = seq
		}
		if t.minSeq == 0 || seq < t.minSeq {
			t.minSeq = seq
		}
		t.touched = &msg.Ts
	}
	msg.Status = StatusSent
	t.c.mu.Unlock()

	if t.listen.OnData != nil {
		t.listen.OnData(msg)
	}
	return nil
}

// Publish creates a draft from content and sends it.
func (t *Topic) Publish(ctx context.Context, content any) (*Message, error) {
	msg := t.CreateMessage(content, false)
	err := t.PublishMessage(ctx, msg)
	return msg, err
}

// CancelSend recalls an unsent or in-transit draft by its provisional id.
func (t *Topic) CancelSend(seq int) bool {
	if seq < LocalSeqBase {
		return false
	}
	t.c.mu.Lock()
	idx := t.messages.Find(&Message{Seq: seq}, false)
	if idx < 0 {
		t.c.mu.Unlock()
		return false
	}
	msg := t.messages.GetAt(idx)
	if msg.Status == StatusSending {
		// In transit: mark and let the publisher drop it on completion.
		msg.cancelled = true
	} else {
		t.messages.DelAt(idx)
	}
	t.c.mu.Unlock()
	return true
}

// setMsgStatus updates the lifecycle status of a cached draft.
func (t *Topic) setMsgStatus(msg *Message, status MessageStatus) {
	t.c.mu.Lock()
	msg.Status = status
	t.c.mu.Unlock()
}

// swapMessageID re-keys a cached draft to the server-issued sequence id.
// Callers must hold the client lock.
func (t *Topic) swapMessageID(msg *Message, newSeq int) {
	idx := t.messages.Find(msg, false)
	if idx >= 0 {
		t.messages.DelAt(idx)
	}
	msg.Seq = newSeq
	t.messages.Put(msg)
}

// removeMessage deletes a cached entry by sequence id.
func (t *Topic) removeMessage(seq int) {
	t.c.mu.Lock()
	idx := t.messages.Find(&Message{Seq: seq}, false)
	if idx >= 0 {
		t.messages.DelAt(idx)
	}
	t.c.mu.Unlock()
}

// Notifications.

// NoteRecv sends a received receipt for the given message id and advances
// the own receive pointer.
func (t *Topic) NoteRecv(seq int) {
	t.note("recv", seq)
}

// NoteRead sends a read receipt for the given message id, or for the
// newest known message when seq is zero.
func (t *Topic) NoteRead(seq int) {
	if seq <= 0 {
		seq = t.SeqID()
	}
	t.note("read", seq)
}

// NoteKeyPress sends a typing notification.
func (t *Topic) NoteKeyPress() {
	t.c.mu.Lock()
	subscribed := t.subscribed
	name := t.name
	t.c.mu.Unlock()
	if subscribed {
		t.c.Note(name, "kp", 0)
	}
}

func (t *Topic) note(what string, seq int) {
	if seq <= 0 || seq >= LocalSeqBase {
		return
	}

	t.c.mu.Lock()
	name := t.name
	sendIt := t.subscribed && t.acs.Mode.IsPresencer()
	advanced := false
	switch what {
	case "recv":
		if seq > t.recv {
			t.recv = seq
			advanced = true
		}
	case "read":
		if seq > t.read {
			t.read = seq
			if seq > t.recv {
				t.recv = seq
			}
			advanced = true
		}
	}
	t.c.mu.Unlock()

	if !advanced {
		return
	}
	if sendIt {
		t.c.Note(name, what, seq)
	}
	// Keep the contact list in agreement with the local pointers.
	if me := t.c.cacheGetTopic(TopicMe); me != nil && me != t {
		me.SetMsgReadRecv(name, what, seq, time.Time{})
	}
}

// Message deletion.

// DelMessagesAll deletes all messages in the topic.
func (t *Topic) DelMessagesAll(ctx context.Context, hard bool) error {
	t.c.mu.Lock()
	hi := t.maxSeq + 1
	t.c.mu.Unlock()
	if hi <= 1 {
		return nil
	}
	return t.DelMessages(ctx, []MsgDelRange{{LowId: 1, HiId: hi}}, hard)
}

// DelMessagesList deletes messages with the given individual ids.
func (t *Topic) DelMessagesList(ctx context.Context, seqs []int, hard bool) error {
	ranges := make([]MsgDelRange, 0, len(seqs))
	for _, seq := range seqs {
		ranges = append(ranges, MsgDelRange{LowId: seq})
	}
	return t.DelMessages(ctx, ranges, hard)
}

// DelMessages deletes message ranges. Ranges which cover only unsent local
// drafts are deleted from the cache without a server round trip; ranges
// reaching into the local id space are clipped to the server-known ids.
func (t *Topic) DelMessages(ctx context.Context, ranges []MsgDelRange, hard bool) error {
	if !t.IsSubscribed() {
		return types.ErrNotSubscribed
	}

	t.c.mu.Lock()
	var tosend []MsgDelRange
	for _, r := range ranges {
		if r.HiId == 0 {
			r.HiId = r.LowId + 1
		}
		if r.LowId >= LocalSeqBase {
			// Local drafts only, nothing to tell the server.
			t.delMessagesLocked(r.LowId, r.HiId)
			continue
		}
		if r.HiId > t.maxSeq+1 && r.HiId < LocalSeqBase {
			r.HiId = t.maxSeq + 1
		}
		if r.HiId >= LocalSeqBase {
			r.HiId = t.maxSeq + 1
		}
		if r.LowId < r.HiId {
			tosend = append(tosend, r)
		}
	}
	t.c.mu.Unlock()

	if len(tosend) == 0 {
		if t.listen.OnData != nil {
			t.listen.OnData(nil)
		}
		return nil
	}

	resp, err := t.c.DelMessages(ctx, t.Name(), tosend, hard)
	if err != nil {
		return err
	}

	t.c.mu.Lock()
	for _, r := range tosend {
		t.delMessagesLocked(r.LowId, r.HiId)
	}
	if resp.Ctrl != nil {
		if delID, ok := resp.Ctrl.IntParam("del"); ok && delID > t.maxDel {
			t.maxDel = delID
		}
	}
	t.updateDeletedRangesLocked()
	t.c.mu.Unlock()

	if t.listen.OnData != nil {
		t.listen.OnData(nil)
	}
	return nil
}

// delMessagesLocked removes cached entries with ids in [low, hi). Callers
// must hold the client lock.
func (t *Topic) delMessagesLocked(low, hi int) {
	since := t.messages.Find(&Message{Seq: low}, true)
	before := t.messages.Find(&Message{Seq: hi}, true)
	t.messages.DelRange(since, before)
}

// Server message routing. Called by the owning client.

// routeData stores an incoming {data} message, synthesizes a gap entry if
// ids were skipped, and advances the watermarks.
func (t *Topic) routeData(data *MsgServerData) {
	t.c.mu.Lock()
	status := StatusToMe
	if data.From == t.c.myUID {
		status = StatusSent
	}
	msg := &Message{
		Topic:   data.Topic,
		From:    data.From,
		Ts:      data.Timestamp,
		Seq:     data.SeqId,
		Head:    data.Head,
		Content: data.Content,
		Status:  status,
	}

	if t.maxSeq > 0 && data.SeqId > t.maxSeq+1 {
		// Message(s) skipped: remember the hole in the history.
		t.messages.Put(&Message{Topic: t.name, Seq: t.maxSeq + 1, Hi: data.SeqId})
	}
	t.messages.Put(msg)

	if data.SeqId > t.seq {
		t.seq = data.SeqId
	}
	if data.SeqId > t.maxSeq {
		t.maxSeq = data.SeqId
		t.touched = &msg.Ts
	}
	if t.minSeq == 0 || data.SeqId < t.minSeq {
		t.minSeq = data.SeqId
	}
	t.c.mu.Unlock()

	if t.listen.OnData != nil {
		t.listen.OnData(msg)
	}

	if me := t.c.cacheGetTopic(TopicMe); me != nil && me != t {
		me.SetMsgReadRecv(data.Topic, "msg", data.SeqId, data.Timestamp)
	}
}

// allMessagesReceived is called when the server reported completion of a
// data query. A zero count means there is nothing earlier than the oldest
// cached message.
func (t *Topic) allMessagesReceived(count int) {
	t.c.mu.Lock()
	if count == 0 {
		t.noEarlierMsgs = true
	}
	t.updateDeletedRangesLocked()
	t.c.mu.Unlock()

	if t.listen.OnAllMessagesReceived != nil {
		t.listen.OnAllMessagesReceived(count)
	}
}

// routeMeta applies a {meta} message: description, subscriptions, deleted
// ranges, tags, or credentials.
func (t *Topic) routeMeta(meta *MsgServerMeta) {
	if meta.Desc != nil {
		t.c.mu.Lock()
		t.lastDescUpd = meta.Timestamp
		t.c.mu.Unlock()
		t.processMetaDesc(meta.Desc)
	}
	if meta.Sub != nil {
		t.c.mu.Lock()
		t.lastSubsUpd = meta.Timestamp
		t.c.mu.Unlock()
		t.processMetaSub(meta.Sub)
	}
	if meta.Del != nil {
		t.processDelMessages(meta.Del.DelId, meta.Del.DelSeq)
	}
	if meta.Tags != nil {
		t.processMetaTags(meta.Tags)
	}
	if meta.Cred != nil {
		t.processMetaCreds(meta.Cred, false)
	}
	if t.listen.OnMeta != nil {
		t.listen.OnMeta(meta)
	}
}

// processMetaDesc applies a topic description update.
func (t *Topic) processMetaDesc(desc *MsgTopicDesc) {
	t.c.mu.Lock()
	if t.cat == catMe {
		t.applyDescMeLocked(desc)
	} else {
		t.applyDescLocked(desc)
	}
	t.c.mu.Unlock()

	if t.listen.OnMetaDesc != nil {
		t.listen.OnMetaDesc(t)
	}
}

// applyDescLocked merges a description into the cached state. Callers must
// hold the client lock.
func (t *Topic) applyDescLocked(desc *MsgTopicDesc) {
	if desc.CreatedAt != nil {
		t.created = desc.CreatedAt
	}
	if desc.UpdatedAt != nil {
		t.updated = desc.UpdatedAt
	}
	if desc.TouchedAt != nil {
		t.touched = desc.TouchedAt
	}
	if desc.Acs != nil {
		t.acs = types.NewAccessMode(desc.Acs.Given, desc.Acs.Want, desc.Acs.Mode)
	}
	if desc.DefaultAcs != nil {
		t.defacs = desc.DefaultAcs
	}
	if desc.Public != nil {
		t.public = normalizeDeleted(desc.Public)
	}
	if desc.Private != nil {
		t.private = normalizeDeleted(desc.Private)
	}
	if desc.SeqId > t.seq {
		t.seq = desc.SeqId
	}
	if desc.ReadSeqId > t.read {
		t.read = desc.ReadSeqId
	}
	if desc.RecvSeqId > t.recv {
		t.recv = desc.RecvSeqId
	}
	if t.recv < t.read {
		t.recv = t.read
	}
	if desc.DelId > t.maxDel {
		t.maxDel = desc.DelId
	}
	if t.cat != catFnd {
		t.online = desc.Online
	}
}

// normalizeDeleted converts the deletion marker to nil.
func normalizeDeleted(v any) any {
	if s, ok := v.(string); ok && s == DelChar {
		return nil
	}
	return v
}

// processMetaSub applies a batch of subscription updates. A nil batch means
// the server reported no subscriptions.
func (t *Topic) processMetaSub(subs []MsgTopicSub) {
	switch t.cat {
	case catMe:
		t.processMetaSubMe(subs)
		return
	case catFnd:
		t.processMetaSubFnd(subs)
		return
	}

	var keys []string
	var updated []*Subscription
	t.c.mu.Lock()
	for i := range subs {
		sub := &subs[i]
		if sub.User == "" {
			continue
		}
		if sub.DeletedAt != nil {
			delete(t.users, sub.User)
			keys = append(keys, sub.User)
			continue
		}
		cached := t.users[sub.User]
		if cached == nil {
			cached = &Subscription{User: sub.User}
			t.users[sub.User] = cached
		}
		mergeSubLocked(cached, sub)
		if sub.User == t.c.myUID {
			t.acs = cached.Mode
		}
		keys = append(keys, sub.User)
		updated = append(updated, cached)
	}
	t.c.mu.Unlock()

	if t.listen.OnMetaSub != nil {
		for _, sub := range updated {
			t.listen.OnMetaSub(sub)
		}
	}
	if len(keys) > 0 && t.listen.OnSubsUpdated != nil {
		t.listen.OnSubsUpdated(keys)
	}
}

// mergeSubLocked merges a wire subscription record into a cached one.
// Callers must hold the client lock.
func mergeSubLocked(cached *Subscription, sub *MsgTopicSub) {
	if sub.UpdatedAt != nil {
		cached.Updated = sub.UpdatedAt
	}
	if sub.TouchedAt != nil {
		cached.TouchedAt = sub.TouchedAt
	}
	if sub.Acs.Given != "" || sub.Acs.Want != "" || sub.Acs.Mode != "" {
		cached.Mode = types.NewAccessMode(sub.Acs.Given, sub.Acs.Want, sub.Acs.Mode)
	}
	if sub.Public != nil {
		cached.Public = normalizeDeleted(sub.Public)
	}
	if sub.Private != nil {
		cached.Private = normalizeDeleted(sub.Private)
	}
	cached.Online = sub.Online
	if sub.SeqId > cached.SeqID {
		cached.SeqID = sub.SeqId
	}
	if sub.RecvSeqId > cached.RecvID {
		cached.RecvID = sub.RecvSeqId
	}
	if sub.ReadSeqId > cached.ReadID {
		cached.ReadID = sub.ReadSeqId
	}
	if cached.RecvID < cached.ReadID {
		cached.RecvID = cached.ReadID
	}
	if sub.DelId > cached.DelID {
		cached.DelID = sub.DelId
	}
	if sub.LastSeen != nil {
		cached.LastSeen = sub.LastSeen
	}
	if n := cached.SeqID - cached.ReadID; n > 0 {
		cached.UnreadCount = n
	} else {
		cached.UnreadCount = 0
	}
}

// processDelMessages applies server-reported deleted ranges to the cache.
func (t *Topic) processDelMessages(delID int, ranges []MsgDelRange) {
	t.c.mu.Lock()
	if delID > t.maxDel {
		t.maxDel = delID
	}
	count := 0
	for _, r := range ranges {
		hi := r.HiId
		if hi == 0 {
			hi = r.LowId + 1
		}
		since := t.messages.Find(&Message{Seq: r.LowId}, true)
		before := t.messages.Find(&Message{Seq: hi}, true)
		count += len(t.messages.DelRange(since, before))
	}
	t.updateDeletedRangesLocked()
	t.c.mu.Unlock()

	if count > 0 && t.listen.OnData != nil {
		t.listen.OnData(nil)
	}
}

// normalizeTags lowercases tags and drops duplicates and empty strings,
// preserving the original order.
func normalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// processMetaTags applies a tags update.
func (t *Topic) processMetaTags(tags []string) {
	if len(tags) == 1 && tags[0] == DelChar {
		tags = nil
	}
	tags = normalizeTags(tags)
	t.c.mu.Lock()
	t.tags = tags
	t.c.mu.Unlock()

	if t.listen.OnTagsUpdated != nil {
		t.listen.OnTagsUpdated(tags)
	}
}

// routePres applies a {pres} notification.
func (t *Topic) routePres(pres *MsgServerPres) {
	if t.cat == catMe {
		t.routePresMe(pres)
		return
	}

	switch pres.What {
	case "on", "off":
		t.c.mu.Lock()
		if sub := t.users[pres.Src]; sub != nil {
			sub.Online = pres.What == "on"
		}
		t.c.mu.Unlock()
	case "del":
		t.processDelMessages(pres.DelId, pres.DelSeq)
	case "term":
		t.resetSub()
	case "acs":
		t.presAcs(pres)
	default:
		logs.Info.Println("ignored presence update", pres.What, "on", t.name)
	}

	if t.listen.OnPres != nil {
		t.listen.OnPres(pres)
	}
}

// presAcs applies an access mode change reported via presence.
func (t *Topic) presAcs(pres *MsgServerPres) {
	if pres.Acs == nil {
		return
	}
	target := pres.AcsTarget
	if target == "" {
		target = t.c.MyUID()
	}

	t.c.mu.Lock()
	sub := t.users[target]
	if sub != nil {
		sub.Mode.UpdateAll(pres.Acs.Given, pres.Acs.Want)
	}
	if target == t.c.myUID {
		t.acs.UpdateAll(pres.Acs.Given, pres.Acs.Want)
		if sub != nil {
			sub.Mode = t.acs
		}
	}
	known := sub != nil
	name := t.name
	t.c.mu.Unlock()

	if !known {
		// Mode change for a user not in the cache: fetch the subscription.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), requestExpireAfter)
			defer cancel()
			query := t.NewMetaGetBuilder().WithOneSub(nil, target).Build()
			if _, err := t.c.GetMeta(ctx, name, query); err != nil {
				logs.Warn.Println("failed to fetch subscription", target, "on", name, err)
			}
		}()
	}
}

// routeInfo applies an {info} notification: delivery receipts advance the
// sender's pointers and the status of the affected own messages.
func (t *Topic) routeInfo(info *MsgServerInfo) {
	if info.What != "kp" {
		t.c.mu.Lock()
		if sub := t.users[info.From]; sub != nil {
			switch info.What {
			case "recv":
				if info.SeqId > sub.RecvID {
					sub.RecvID = info.SeqId
				}
			case "read":
				if info.SeqId > sub.ReadID {
					sub.ReadID = info.SeqId
					if sub.RecvID < sub.ReadID {
						sub.RecvID = sub.ReadID
					}
				}
			}
		}
		// Advance the status of own messages covered by the receipt.
		var want MessageStatus
		switch info.What {
		case "recv":
			want = StatusReceived
		case "read":
			want = StatusRead
		}
		if want != StatusNone {
			me := t.c.myUID
			t.messages.ForEach(0, 0, func(m *Message, _ int) {
				if !m.IsGap() && m.From == me && m.Seq <= info.SeqId &&
					m.Status >= StatusSent && m.Status < want {
					m.Status = want
				}
			})
		}
		t.c.mu.Unlock()
	}

	if t.listen.OnInfo != nil {
		t.listen.OnInfo(info)
	}
}

// resetSub marks the topic as detached from the server.
func (t *Topic) resetSub() {
	t.c.mu.Lock()
	t.subscribed = false
	t.c.mu.Unlock()
}

// gone drops all local state of a deleted topic and removes it from the
// client cache.
func (t *Topic) gone() {
	t.c.mu.Lock()
	t.messages.Reset()
	t.users = make(map[string]*Subscription)
	t.subscribed = false
	t.online = false
	t.acs = types.AccessMode{}
	t.private = nil
	name := t.name
	t.c.mu.Unlock()

	t.c.cacheDelTopic(name)
	if me := t.c.cacheGetTopic(TopicMe); me != nil && me != t {
		me.contactGone(name)
	}
}

// updateDeletedRangesLocked rebuilds the gap entries of the message cache
// so that every id between the known boundaries is either cached or
// covered by exactly one gap. Callers must hold the client lock.
func (t *Topic) updateDeletedRangesLocked() {
	// Server-issued entries in order, drafts set aside.
	var real, drafts []*Message
	t.messages.ForEach(0, 0, func(m *Message, _ int) {
		if m.Seq >= LocalSeqBase {
			drafts = append(drafts, m)
		} else if !m.IsGap() {
			real = append(real, m)
		}
	})
	t.messages.Reset()

	known := t.maxSeq
	if t.seq > known {
		known = t.seq
	}

	prevUpper := 0
	if len(real) > 0 {
		low := real[0].Seq
		if t.minSeq > 0 && t.minSeq < low {
			low = t.minSeq
		}
		if !t.noEarlierMsgs && low > 1 {
			t.messages.Put(&Message{Topic: t.name, Seq: 1, Hi: low})
		}
		for _, m := range real {
			if prevUpper > 0 && m.Seq > prevUpper {
				t.messages.Put(&Message{Topic: t.name, Seq: prevUpper, Hi: m.Seq})
			}
			t.messages.Put(m)
			prevUpper = m.Seq + 1
		}
	}
	if prevUpper > 0 && known+1 > prevUpper {
		t.messages.Put(&Message{Topic: t.name, Seq: prevUpper, Hi: known + 1})
	}
	t.messages.Put(drafts...)
}
