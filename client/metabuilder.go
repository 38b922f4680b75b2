package client

import (
	"time"
)

// MetaGetBuilder assembles the "what" of a {get} or {sub.get} query from
// individual parts. Repeated parts of the same kind overwrite each other,
// the last call wins.
type MetaGetBuilder struct {
	topic *Topic
	what  map[string]*MsgGetOpts
	order []string
}

// NewMetaGetBuilder creates a builder bound to a topic. The binding supplies
// the defaults: cached watermarks for data and timestamps for desc and sub.
func (t *Topic) NewMetaGetBuilder() *MetaGetBuilder {
	return &MetaGetBuilder{topic: t, what: make(map[string]*MsgGetOpts)}
}

func (b *MetaGetBuilder) add(what string, opts *MsgGetOpts) *MetaGetBuilder {
	if _, seen := b.what[what]; !seen {
		b.order = append(b.order, what)
	}
	b.what[what] = opts
	return b
}

// WithData requests messages within the range [since, before) up to the
// given limit. Zero values are omitted from the query.
func (b *MetaGetBuilder) WithData(since, before, limit int) *MetaGetBuilder {
	return b.add("data", &MsgGetOpts{SinceId: since, BeforeId: before, Limit: limit})
}

// WithLaterData requests messages newer than the newest cached message.
func (b *MetaGetBuilder) WithLaterData(limit int) *MetaGetBuilder {
	since := 0
	if max := b.topic.maxMsgSeq(); max > 0 {
		since = max + 1
	}
	return b.WithData(since, 0, limit)
}

// WithEarlierData requests messages older than the oldest cached message.
func (b *MetaGetBuilder) WithEarlierData(limit int) *MetaGetBuilder {
	before := 0
	if min := b.topic.minMsgSeq(); min > 0 {
		before = min
	}
	return b.WithData(0, before, limit)
}

// WithDesc requests the topic description if changed since the given time.
func (b *MetaGetBuilder) WithDesc(ims *time.Time) *MetaGetBuilder {
	return b.add("desc", &MsgGetOpts{IfModifiedSince: ims})
}

// WithLaterDesc requests the topic description changed since the last
// cached update.
func (b *MetaGetBuilder) WithLaterDesc() *MetaGetBuilder {
	return b.WithDesc(b.topic.lastDescUpdate())
}

// WithSub requests subscriptions changed since the given time.
func (b *MetaGetBuilder) WithSub(ims *time.Time, limit int, user string) *MetaGetBuilder {
	opts := &MsgGetOpts{IfModifiedSince: ims, Limit: limit}
	if b.topic.Name() == TopicMe {
		opts.Topic = user
	} else {
		opts.User = user
	}
	return b.add("sub", opts)
}

// WithOneSub requests a single subscription.
func (b *MetaGetBuilder) WithOneSub(ims *time.Time, user string) *MetaGetBuilder {
	return b.WithSub(ims, 0, user)
}

// WithLaterOneSub requests a single subscription changed since the last
// cached subscription update.
func (b *MetaGetBuilder) WithLaterOneSub(user string) *MetaGetBuilder {
	return b.WithOneSub(b.topic.lastSubsUpdate(), user)
}

// WithLaterSub requests subscriptions changed since the last cached
// subscription update.
func (b *MetaGetBuilder) WithLaterSub(limit int) *MetaGetBuilder {
	return b.WithSub(b.topic.lastSubsUpdate(), limit, "")
}

// WithTags requests the topic's indexable tags.
func (b *MetaGetBuilder) WithTags() *MetaGetBuilder {
	return b.add("tags", nil)
}

// WithCred requests account credentials. Valid only for the 'me' topic.
func (b *MetaGetBuilder) WithCred() *MetaGetBuilder {
	if b.topic.Name() == TopicMe {
		b.add("cred", nil)
	}
	return b
}

// WithDel requests the ranges of deleted messages newer than the last
// known delete transaction.
func (b *MetaGetBuilder) WithDel(since, limit int) *MetaGetBuilder {
	if since <= 0 {
		since = b.topic.maxDelID() + 1
	}
	return b.add("del", &MsgGetOpts{SinceId: since, Limit: limit})
}

// Build produces the query. Nil if no parts were added.
func (b *MetaGetBuilder) Build() *MsgGetQuery {
	if len(b.order) == 0 {
		return nil
	}
	query := &MsgGetQuery{}
	what := ""
	for _, part := range b.order {
		opts := b.what[part]
		switch part {
		case "data":
			query.Data = opts
		case "desc":
			query.Desc = opts
		case "sub":
			query.Sub = opts
		case "del":
			query.Del = opts
		}
		if what != "" {
			what += " "
		}
		what += part
	}
	query.What = what
	return query
}
