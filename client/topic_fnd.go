/******************************************************************************
 *
 *  Description :
 *
 *    The 'fnd' topic: user and topic discovery. Search results arrive as
 *    subscription records; every new batch replaces the previous one.
 *
 *****************************************************************************/

package client

// processMetaSubFnd applies a batch of search results. Results are keyed
// by topic name when present, otherwise by user id.
func (t *Topic) processMetaSubFnd(subs []MsgTopicSub) {
	var keys []string
	var updated []*Subscription

	t.c.mu.Lock()
	t.users = make(map[string]*Subscription)
	for i := range subs {
		sub := &subs[i]
		key := sub.Topic
		if key == "" {
			key = sub.User
		}
		if key == "" {
			continue
		}
		cached := &Subscription{User: sub.User, Topic: sub.Topic}
		mergeSubLocked(cached, sub)
		t.users[key] = cached
		keys = append(keys, key)
		updated = append(updated, cached)
	}
	t.c.mu.Unlock()

	if t.listen.OnMetaSub != nil {
		for _, sub := range updated {
			t.listen.OnMetaSub(sub)
		}
	}
	if t.listen.OnSubsUpdated != nil {
		t.listen.OnSubsUpdated(keys)
	}
}
