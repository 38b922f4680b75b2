package client

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tinode/go-client/types"
)

// seqs flattens the message cache into (seq, hi) pairs for comparison.
func seqs(t *Topic) [][2]int {
	var out [][2]int
	t.ForEachMessage(0, 0, func(m *Message) {
		out = append(out, [2]int{m.Seq, m.Hi})
	})
	return out
}

func dataMsg(topic, from string, seq int) *MsgServerData {
	return &MsgServerData{
		Topic:     topic,
		From:      from,
		Timestamp: time.Date(2026, 1, 1, 0, 0, seq, 0, time.UTC),
		SeqId:     seq,
		Content:   "msg " + string(rune('0'+seq)),
	}
}

func TestTopicCategory(t *testing.T) {
	tests := []struct {
		name string
		want topicCat
	}{
		{"me", catMe},
		{"fnd", catFnd},
		{"sys", catSys},
		{"usrAlice", catP2P},
		{"grpTeam", catGrp},
		{"chnNews", catGrp},
		{"newXYZ", catGrp},
	}
	for _, tc := range tests {
		if got := topicCategory(tc.name); got != tc.want {
			t.Errorf("topicCategory(%q) = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestRouteDataGapInsertion(t *testing.T) {
	c := newTestClient(t)
	topic := c.Topic("grpTest")

	topic.routeData(dataMsg("grpTest", "usrBob", 1))
	topic.routeData(dataMsg("grpTest", "usrBob", 2))
	topic.routeData(dataMsg("grpTest", "usrBob", 5))

	want := [][2]int{{1, 0}, {2, 0}, {3, 5}, {5, 0}}
	if diff := cmp.Diff(want, seqs(topic)); diff != "" {
		t.Error(diff)
	}
	if topic.SeqID() != 5 {
		t.Errorf("seq = %d, want 5", topic.SeqID())
	}
	if topic.UnreadCount() != 5 {
		t.Errorf("unread = %d, want 5", topic.UnreadCount())
	}

	// Filling the hole replaces nothing but adds the message; the gap is
	// rebuilt on the next history update.
	topic.routeData(dataMsg("grpTest", "usrBob", 3))
	topic.routeData(dataMsg("grpTest", "usrBob", 4))
	topic.allMessagesReceived(2)

	want = [][2]int{{1, 0}, {2, 0}, {3, 0}, {4, 0}, {5, 0}}
	if diff := cmp.Diff(want, seqs(topic)); diff != "" {
		t.Error(diff)
	}
}

func TestUpdateDeletedRanges(t *testing.T) {
	c := newTestClient(t)
	topic := c.Topic("grpTest")

	topic.routeData(dataMsg("grpTest", "usrBob", 2))
	topic.routeData(dataMsg("grpTest", "usrBob", 5))

	c.mu.Lock()
	topic.updateDeletedRangesLocked()
	c.mu.Unlock()

	// History may extend below the oldest cached message, so a leading gap
	// is synthesized.
	want := [][2]int{{1, 2}, {2, 0}, {3, 5}, {5, 0}}
	if diff := cmp.Diff(want, seqs(topic)); diff != "" {
		t.Error(diff)
	}

	// The server confirmed nothing exists before the oldest cached message:
	// the leading gap disappears.
	topic.allMessagesReceived(0)
	want = [][2]int{{2, 0}, {3, 5}, {5, 0}}
	if diff := cmp.Diff(want, seqs(topic)); diff != "" {
		t.Error(diff)
	}
}

func TestUpdateDeletedRangesTrailing(t *testing.T) {
	c := newTestClient(t)
	topic := c.Topic("grpTest")

	topic.routeData(dataMsg("grpTest", "usrBob", 1))
	topic.routeData(dataMsg("grpTest", "usrBob", 2))

	// The topic is known to have newer messages than the cache holds.
	c.mu.Lock()
	topic.seq = 4
	topic.updateDeletedRangesLocked()
	c.mu.Unlock()

	want := [][2]int{{1, 0}, {2, 0}, {3, 5}}
	if diff := cmp.Diff(want, seqs(topic)); diff != "" {
		t.Error(diff)
	}
}

func TestProcessDelMessages(t *testing.T) {
	c := newTestClient(t)
	topic := c.Topic("grpTest")

	topic.routeData(dataMsg("grpTest", "usrBob", 1))
	topic.routeData(dataMsg("grpTest", "usrBob", 2))
	topic.routeData(dataMsg("grpTest", "usrBob", 3))

	topic.processDelMessages(4, []MsgDelRange{{LowId: 2}})

	// The deleted message leaves a hole.
	want := [][2]int{{1, 0}, {2, 3}, {3, 0}}
	if diff := cmp.Diff(want, seqs(topic)); diff != "" {
		t.Error(diff)
	}
	if topic.maxDelID() != 4 {
		t.Errorf("maxDel = %d, want 4", topic.maxDelID())
	}
}

func TestDraftLifecycle(t *testing.T) {
	c := newTestClient(t)
	topic := c.Topic("grpTest")

	first := topic.CreateMessage("draft one", false)
	second := topic.CreateMessage("draft two", true)

	if first.Seq != LocalSeqBase || second.Seq != LocalSeqBase+1 {
		t.Errorf("draft ids = %d, %d", first.Seq, second.Seq)
	}
	if first.Status != StatusQueued || !first.IsPending() {
		t.Errorf("draft status = %v", first.Status)
	}
	if !second.noForwarding {
		t.Error("noEcho not recorded")
	}

	// Server messages and drafts share the cache; drafts sort last.
	topic.routeData(dataMsg("grpTest", "usrBob", 1))
	want := [][2]int{{1, 0}, {LocalSeqBase, 0}, {LocalSeqBase + 1, 0}}
	if diff := cmp.Diff(want, seqs(topic)); diff != "" {
		t.Error(diff)
	}

	if !topic.CancelSend(first.Seq) {
		t.Error("queued draft not cancelled")
	}
	if topic.CancelSend(1) {
		t.Error("cancelled a server-issued message")
	}
	if topic.MessageCount() != 2 {
		t.Errorf("cache size = %d, want 2", topic.MessageCount())
	}
}

func TestSwapMessageID(t *testing.T) {
	c := newTestClient(t)
	topic := c.Topic("grpTest")
	msg := topic.CreateMessage("hello", false)
	provisional := msg.Seq

	c.mu.Lock()
	topic.swapMessageID(msg, 42)
	c.mu.Unlock()

	if got := topic.GetMessage(42); got != msg {
		t.Error("message not found under the new id")
	}
	if topic.GetMessage(provisional) != nil {
		t.Error("message still cached under the provisional id")
	}
}

func TestDraftsSurviveGapRebuild(t *testing.T) {
	c := newTestClient(t)
	topic := c.Topic("grpTest")

	topic.routeData(dataMsg("grpTest", "usrBob", 1))
	topic.routeData(dataMsg("grpTest", "usrBob", 3))
	draft := topic.CreateMessage("unsent", false)

	c.mu.Lock()
	topic.updateDeletedRangesLocked()
	c.mu.Unlock()

	want := [][2]int{{1, 0}, {2, 3}, {3, 0}, {draft.Seq, 0}}
	if diff := cmp.Diff(want, seqs(topic)); diff != "" {
		t.Error(diff)
	}
}

func TestProcessMetaSubGroup(t *testing.T) {
	c := newTestClient(t)
	c.mu.Lock()
	c.myUID = "usrMe"
	c.mu.Unlock()
	topic := c.Topic("grpTest")

	var batches [][]string
	topic.SetCallbacks(TopicCallbacks{
		OnSubsUpdated: func(keys []string) { batches = append(batches, keys) },
	})

	topic.processMetaSub([]MsgTopicSub{
		{User: "usrBob", Acs: MsgAccessMode{Given: "JRWPS", Want: "JRW"}, ReadSeqId: 3, Online: true},
		{User: "usrMe", Acs: MsgAccessMode{Given: "JRWPASDO", Want: "JRWP"}},
	})

	bob := topic.GetSubscription("usrBob")
	if bob == nil {
		t.Fatal("subscriber not cached")
	}
	if !bob.Online || bob.ReadID != 3 {
		t.Errorf("subscriber state: %+v", bob)
	}
	if want := types.ParseAcs("JRW"); bob.Mode.Mode != want {
		t.Errorf("subscriber mode = %s", bob.Mode.Mode)
	}

	// The own record also updates the topic's access mode.
	if want := types.ParseAcs("JRWP"); topic.AccessMode().Mode != want {
		t.Errorf("topic mode = %s", topic.AccessMode().Mode)
	}

	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Errorf("update batches: %v", batches)
	}

	// A deleted record drops the subscriber.
	now := time.Now()
	topic.processMetaSub([]MsgTopicSub{{User: "usrBob", DeletedAt: &now}})
	if topic.GetSubscription("usrBob") != nil {
		t.Error("deleted subscriber still cached")
	}
}

func TestRouteInfoReceipts(t *testing.T) {
	c := newTestClient(t)
	c.mu.Lock()
	c.myUID = "usrMe"
	c.mu.Unlock()
	topic := c.Topic("grpTest")
	topic.processMetaSub([]MsgTopicSub{{User: "usrBob", Acs: MsgAccessMode{Mode: "JRWPS"}}})

	// Own messages echoed back carry the sent status.
	topic.routeData(dataMsg("grpTest", "usrMe", 1))
	topic.routeData(dataMsg("grpTest", "usrMe", 2))
	topic.routeData(dataMsg("grpTest", "usrBob", 3))

	topic.routeInfo(&MsgServerInfo{Topic: "grpTest", From: "usrBob", What: "read", SeqId: 2})

	if got := topic.GetMessage(1).Status; got != StatusRead {
		t.Errorf("message 1 status = %v, want read", got)
	}
	if got := topic.GetMessage(2).Status; got != StatusRead {
		t.Errorf("message 2 status = %v, want read", got)
	}
	// Another user's message is not affected.
	if got := topic.GetMessage(3).Status; got != StatusToMe {
		t.Errorf("message 3 status = %v, want to me", got)
	}

	bob := topic.GetSubscription("usrBob")
	if bob.ReadID != 2 || bob.RecvID != 2 {
		t.Errorf("subscriber pointers: read=%d recv=%d", bob.ReadID, bob.RecvID)
	}
}

func TestRoutePresOnTopic(t *testing.T) {
	c := newTestClient(t)
	topic := c.Topic("grpTest")
	topic.processMetaSub([]MsgTopicSub{{User: "usrBob", Acs: MsgAccessMode{Mode: "JRWPS"}}})

	topic.routePres(&MsgServerPres{Topic: "grpTest", Src: "usrBob", What: "on"})
	if !topic.GetSubscription("usrBob").Online {
		t.Error("subscriber not online")
	}
	topic.routePres(&MsgServerPres{Topic: "grpTest", Src: "usrBob", What: "off"})
	if topic.GetSubscription("usrBob").Online {
		t.Error("subscriber still online")
	}

	// Termination detaches the topic.
	c.mu.Lock()
	topic.subscribed = true
	c.mu.Unlock()
	topic.routePres(&MsgServerPres{Topic: "grpTest", What: "term"})
	if topic.IsSubscribed() {
		t.Error("topic still attached after term")
	}
}

func TestPresAcsUpdatesMode(t *testing.T) {
	c := newTestClient(t)
	c.mu.Lock()
	c.myUID = "usrMe"
	c.mu.Unlock()
	topic := c.Topic("grpTest")
	topic.processMetaSub([]MsgTopicSub{
		{User: "usrMe", Acs: MsgAccessMode{Given: "JRWP", Want: "JRWP"}},
	})

	topic.routePres(&MsgServerPres{
		Topic:     "grpTest",
		What:      "acs",
		AcsTarget: "usrMe",
		Acs:       &MsgAccessMode{Given: "+S", Want: "+S"},
	})

	if want := types.ParseAcs("JRWPS"); topic.AccessMode().Mode != want {
		t.Errorf("mode = %s, want JRWPS", topic.AccessMode().Mode)
	}
}

func TestProcessMetaDesc(t *testing.T) {
	c := newTestClient(t)
	topic := c.Topic("grpTest")

	var described bool
	topic.SetCallbacks(TopicCallbacks{
		OnMetaDesc: func(*Topic) { described = true },
	})

	created := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	topic.processMetaDesc(&MsgTopicDesc{
		CreatedAt: &created,
		Acs:       &MsgAccessMode{Given: "JRWPS", Want: "JRW"},
		SeqId:     12,
		ReadSeqId: 10,
		RecvSeqId: 8,
		Public:    map[string]any{"fn": "Test Group"},
		Online:    true,
	})

	if !described {
		t.Error("description callback not invoked")
	}
	if topic.SeqID() != 12 {
		t.Errorf("seq = %d", topic.SeqID())
	}
	if topic.UnreadCount() != 2 {
		t.Errorf("unread = %d, want 2", topic.UnreadCount())
	}
	if !topic.Online() {
		t.Error("topic not online")
	}
	// Receive pointer never lags the read pointer.
	c.mu.Lock()
	recv := topic.recv
	c.mu.Unlock()
	if recv != 10 {
		t.Errorf("recv = %d, want 10", recv)
	}
	if want := types.ParseAcs("JRW"); topic.AccessMode().Mode != want {
		t.Errorf("mode = %s", topic.AccessMode().Mode)
	}

	// The deletion marker clears the field.
	topic.processMetaDesc(&MsgTopicDesc{Public: DelChar})
	if topic.Public() != nil {
		t.Errorf("public = %v, want nil", topic.Public())
	}
}

func TestGone(t *testing.T) {
	c := newTestClient(t)
	topic := c.Topic("grpTest")
	topic.routeData(dataMsg("grpTest", "usrBob", 1))

	topic.gone()

	if c.cacheGetTopic("grpTest") != nil {
		t.Error("deleted topic still cached")
	}
	if topic.MessageCount() != 0 {
		t.Error("deleted topic retains messages")
	}
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		input, want []string
	}{
		{nil, nil},
		{[]string{"Go", "go", "GO"}, []string{"go"}},
		{[]string{"Chat", " IM ", "chat", ""}, []string{"chat", "im"}},
		{[]string{"travel", "books"}, []string{"travel", "books"}},
	}
	for _, tc := range tests {
		if diff := cmp.Diff(tc.want, normalizeTags(tc.input)); diff != "" {
			t.Errorf("normalizeTags(%v) mismatch (-want +got):\n%s", tc.input, diff)
		}
	}
}

func TestProcessMetaTags(t *testing.T) {
	c := newTestClient(t)
	topic := c.Topic("grpTest")

	var reported []string
	topic.SetCallbacks(TopicCallbacks{
		OnTagsUpdated: func(tags []string) { reported = tags },
	})

	// Tags are stored lowercased with duplicates dropped.
	topic.processMetaTags([]string{"Travel", "travel", "Go"})
	want := []string{"travel", "go"}
	if diff := cmp.Diff(want, topic.Tags()); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, reported); diff != "" {
		t.Errorf("callback tags mismatch (-want +got):\n%s", diff)
	}

	// The deletion marker clears the list.
	topic.processMetaTags([]string{DelChar})
	if topic.Tags() != nil {
		t.Errorf("tags = %v, want nil", topic.Tags())
	}
}
