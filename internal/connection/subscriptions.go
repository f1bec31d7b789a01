package connection

import "sort"

// topicSet tracks desired topics with a reference count per topic.
// Not safe for concurrent use; guarded by the Manager's mutex.
type topicSet struct {
	refs map[Topic]int
}

func newTopicSet() *topicSet {
	return &topicSet{refs: make(map[Topic]int)}
}

// add takes one reference on each distinct topic and returns the topics that
// were not desired before the call, in call order.
func (s *topicSet) add(topics []Topic) []Topic {
	var added []Topic
	for _, t := range dedupe(topics) {
		s.refs[t]++
		if s.refs[t] == 1 {
			added = append(added, t)
		}
	}
	return added
}

// remove releases one reference on each distinct topic and returns the topics
// whose count reached zero. Topics never added are ignored.
func (s *topicSet) remove(topics []Topic) []Topic {
	var removed []Topic
	for _, t := range dedupe(topics) {
		n, ok := s.refs[t]
		if !ok {
			continue
		}
		if n <= 1 {
			delete(s.refs, t)
			removed = append(removed, t)
			continue
		}
		s.refs[t] = n - 1
	}
	return removed
}

// list returns the desired topics sorted for stable replay.
func (s *topicSet) list() []Topic {
	out := make([]Topic, 0, len(s.refs))
	for t := range s.refs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *topicSet) refCount(t Topic) int {
	return s.refs[t]
}

func (s *topicSet) len() int {
	return len(s.refs)
}

func (s *topicSet) reset() {
	s.refs = make(map[Topic]int)
}

// dedupe drops repeated and empty topics, keeping first-seen order.
func dedupe(topics []Topic) []Topic {
	seen := make(map[Topic]struct{}, len(topics))
	out := make([]Topic, 0, len(topics))
	for _, t := range topics {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
