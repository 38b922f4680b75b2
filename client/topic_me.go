/******************************************************************************
 *
 *  Description :
 *
 *    The 'me' topic: account settings, credentials, and the contact list
 *    with per-contact presence and unread counters. Contact records are
 *    keyed by topic name.
 *
 *****************************************************************************/

package client

import (
	"context"
	"time"

	"github.com/tinode/go-client/logs"
)

// applyDescMeLocked merges an account description update. Losing the
// presence permission turns all contacts offline. Callers must hold the
// client lock.
func (t *Topic) applyDescMeLocked(desc *MsgTopicDesc) {
	wasPresencer := t.acs.Mode.IsPresencer()
	t.applyDescLocked(desc)
	if wasPresencer && !t.acs.Mode.IsPresencer() {
		for _, sub := range t.users {
			sub.Online = false
		}
	}
}

// processMetaSubMe applies a batch of contact updates.
func (t *Topic) processMetaSubMe(subs []MsgTopicSub) {
	var keys []string
	var updated []*Subscription

	t.c.mu.Lock()
	for i := range subs {
		sub := &subs[i]
		topicName := sub.Topic
		if topicName == "" || topicName == TopicMe || topicName == TopicFnd {
			continue
		}
		if sub.DeletedAt != nil {
			delete(t.users, topicName)
			keys = append(keys, topicName)
			continue
		}
		cached := t.users[topicName]
		if cached == nil {
			cached = &Subscription{Topic: topicName}
			t.users[topicName] = cached
		}
		mergeSubLocked(cached, sub)
		keys = append(keys, topicName)
		updated = append(updated, cached)
	}
	t.c.mu.Unlock()

	// Keep cached topic objects in agreement with their contact records.
	for _, sub := range updated {
		if cached := t.c.cacheGetTopic(sub.Topic); cached != nil && cached != t {
			t.c.mu.Lock()
			if sub.SeqID > cached.seq {
				cached.seq = sub.SeqID
			}
			if sub.ReadID > cached.read {
				cached.read = sub.ReadID
			}
			if sub.RecvID > cached.recv {
				cached.recv = sub.RecvID
			}
			if sub.TouchedAt != nil {
				cached.touched = sub.TouchedAt
			}
			cached.acs = sub.Mode
			cached.online = sub.Online
			t.c.mu.Unlock()
		}
	}

	if t.listen.OnMetaSub != nil {
		for _, sub := range updated {
			t.listen.OnMetaSub(sub)
		}
	}
	if len(keys) > 0 && t.listen.OnSubsUpdated != nil {
		t.listen.OnSubsUpdated(keys)
	}
}

// SetMsgReadRecv advances a contact's message pointers: what is "msg" for
// a new message, "recv" for a delivery receipt, "read" for a read receipt,
// or "del" for a delete transaction. The pointers never move backwards and
// recv never lags read.
func (t *Topic) SetMsgReadRecv(topicName, what string, seq int, ts time.Time) {
	if seq <= 0 || seq >= LocalSeqBase {
		return
	}

	t.c.mu.Lock()
	sub := t.users[topicName]
	if sub == nil {
		t.c.mu.Unlock()
		return
	}
	changed := false
	switch what {
	case "msg":
		if seq > sub.SeqID {
			sub.SeqID = seq
			if !ts.IsZero() {
				sub.TouchedAt = &ts
			}
			changed = true
		}
	case "recv":
		if seq > sub.RecvID {
			sub.RecvID = seq
			changed = true
		}
	case "read":
		if seq > sub.ReadID {
			sub.ReadID = seq
			if sub.RecvID < sub.ReadID {
				sub.RecvID = sub.ReadID
			}
			changed = true
		}
	case "del":
		if seq > sub.DelID {
			sub.DelID = seq
			changed = true
		}
	}
	if changed {
		if n := sub.SeqID - sub.ReadID; n > 0 {
			sub.UnreadCount = n
		} else {
			sub.UnreadCount = 0
		}
	}
	t.c.mu.Unlock()

	if changed && t.listen.OnContactUpdate != nil {
		t.listen.OnContactUpdate(what, sub)
	}
}

// GetMsgReadRecv returns a contact's pointer: the last message id, or the
// last received or read id.
func (t *Topic) GetMsgReadRecv(topicName, what string) int {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	sub := t.users[topicName]
	if sub == nil {
		return 0
	}
	switch what {
	case "msg":
		return sub.SeqID
	case "recv":
		return sub.RecvID
	case "read":
		return sub.ReadID
	}
	return 0
}

// GetContact returns a contact record by topic name, nil if unknown.
func (t *Topic) GetContact(topicName string) *Subscription {
	return t.GetSubscription(topicName)
}

// contactFromNewTopic records a contact for a topic just created by this
// session.
func (t *Topic) contactFromNewTopic(created *Topic, ts time.Time) {
	t.c.mu.Lock()
	name := created.name
	sub := t.users[name]
	if sub == nil {
		sub = &Subscription{Topic: name}
		t.users[name] = sub
	}
	sub.Mode = created.acs
	sub.Private = created.private
	sub.Updated = &ts
	sub.TouchedAt = &ts
	t.c.mu.Unlock()

	if t.listen.OnSubsUpdated != nil {
		t.listen.OnSubsUpdated([]string{name})
	}
}

// contactGone removes a contact of a deleted topic.
func (t *Topic) contactGone(topicName string) {
	t.c.mu.Lock()
	sub := t.users[topicName]
	delete(t.users, topicName)
	t.c.mu.Unlock()

	if sub != nil && t.listen.OnContactUpdate != nil {
		t.listen.OnContactUpdate("gone", sub)
	}
	if sub != nil && t.listen.OnSubsUpdated != nil {
		t.listen.OnSubsUpdated([]string{topicName})
	}
}

// processMetaCreds applies an account credentials update. When upd is set
// the batch is a partial update from a {set} confirmation, otherwise it
// replaces the cached list.
func (t *Topic) processMetaCreds(creds []*MsgCredServer, upd bool) {
	if len(creds) == 1 && creds[0].Value == DelChar {
		creds = nil
	}

	t.c.mu.Lock()
	if !upd {
		t.creds = creds
	} else {
		for _, c := range creds {
			if c.Value != "" {
				found := false
				for _, have := range t.creds {
					if have.Method == c.Method && have.Value == c.Value {
						have.Done = c.Done
						found = true
						break
					}
				}
				if !found {
					t.creds = append(t.creds, c)
				}
			} else if c.Done {
				// Confirmation without a value: applies to the first
				// unconfirmed credential of the method.
				for _, have := range t.creds {
					if have.Method == c.Method && !have.Done {
						have.Done = true
						break
					}
				}
			}
		}
	}
	result := t.creds
	t.c.mu.Unlock()

	if t.listen.OnCredsUpdated != nil {
		t.listen.OnCredsUpdated(result)
	}
}

// Credentials returns the cached account credentials.
func (t *Topic) Credentials() []*MsgCredServer {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.creds
}

// DelCredential deletes an account credential and drops it from the cache.
func (t *Topic) DelCredential(ctx context.Context, method, value string) error {
	_, err := t.c.DelCredential(ctx, method, value)
	if err != nil {
		return err
	}

	t.c.mu.Lock()
	for i, have := range t.creds {
		if have.Method == method && have.Value == value {
			t.creds = append(t.creds[:i], t.creds[i+1:]...)
			break
		}
	}
	result := t.creds
	t.c.mu.Unlock()

	if t.listen.OnCredsUpdated != nil {
		t.listen.OnCredsUpdated(result)
	}
	return nil
}

// routePresMe applies a presence notification on the 'me' topic: a change
// in the state of one of the contacts.
func (t *Topic) routePresMe(pres *MsgServerPres) {
	var affected *Subscription

	t.c.mu.Lock()
	sub := t.users[pres.Src]
	t.c.mu.Unlock()

	switch pres.What {
	case "on", "off":
		if sub != nil {
			t.c.mu.Lock()
			sub.Online = pres.What == "on"
			if pres.What == "off" {
				now := time.Now().UTC()
				if sub.LastSeen == nil {
					sub.LastSeen = &MsgLastSeenInfo{}
				}
				sub.LastSeen.When = &now
			}
			t.c.mu.Unlock()
			affected = sub
		}
	case "msg":
		if sub == nil {
			t.fetchContact(pres.Src)
		} else {
			t.SetMsgReadRecv(pres.Src, "msg", pres.SeqId, time.Now().UTC())
		}
	case "recv", "read":
		t.SetMsgReadRecv(pres.Src, pres.What, pres.SeqId, time.Time{})
	case "del":
		t.SetMsgReadRecv(pres.Src, "del", pres.DelId, time.Time{})
	case "upd":
		// Contact description changed, re-fetch it.
		t.fetchContact(pres.Src)
	case "acs":
		if sub == nil {
			t.fetchContact(pres.Src)
		} else if pres.Acs != nil {
			t.c.mu.Lock()
			sub.Mode.UpdateAll(pres.Acs.Given, pres.Acs.Want)
			dropped := !sub.Mode.Mode.IsJoiner()
			if dropped {
				delete(t.users, pres.Src)
			}
			t.c.mu.Unlock()
			affected = sub
			if cached := t.c.cacheGetTopic(pres.Src); cached != nil {
				t.c.mu.Lock()
				cached.acs = sub.Mode
				t.c.mu.Unlock()
			}
		}
	case "ua":
		if sub != nil {
			t.c.mu.Lock()
			if sub.LastSeen == nil {
				sub.LastSeen = &MsgLastSeenInfo{}
			}
			sub.LastSeen.UserAgent = pres.UserAgent
			t.c.mu.Unlock()
			affected = sub
		}
	case "gone":
		if cached := t.c.cacheGetTopic(pres.Src); cached != nil {
			cached.gone()
		} else {
			t.contactGone(pres.Src)
		}
	case "tags":
		t.fetchOwnTags()
	default:
		logs.Info.Println("ignored presence update", pres.What, "on me")
	}

	if affected != nil && t.listen.OnContactUpdate != nil {
		t.listen.OnContactUpdate(pres.What, affected)
	}
	if t.listen.OnPres != nil {
		t.listen.OnPres(pres)
	}
}

// fetchContact requests the subscription record of a single contact.
func (t *Topic) fetchContact(topicName string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestExpireAfter)
		defer cancel()
		query := t.NewMetaGetBuilder().WithLaterOneSub(topicName).Build()
		if _, err := t.c.GetMeta(ctx, TopicMe, query); err != nil {
			logs.Warn.Println("failed to fetch contact", topicName, err)
		}
	}()
}

// fetchOwnTags requests the account tags after a change notification.
func (t *Topic) fetchOwnTags() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestExpireAfter)
		defer cancel()
		query := t.NewMetaGetBuilder().WithTags().Build()
		if _, err := t.c.GetMeta(ctx, TopicMe, query); err != nil {
			logs.Warn.Println("failed to fetch tags:", err)
		}
	}()
}
