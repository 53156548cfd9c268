package csvlog

import (
	"sort"
	"sync"

	"github.com/hrygo/fitcoach/store"
)

// DefaultSubjectLimit is the page size of SubjectView.List.
const DefaultSubjectLimit = 5

// MessageView caches the message file grouped by conversation.
// An invalidated view reloads on the next read.
type MessageView struct {
	file *File

	// reloadMu spans the file read and the swap so that an older snapshot
	// never replaces a newer one.
	reloadMu sync.Mutex

	mu             sync.RWMutex
	loaded         bool
	byConversation map[string][]*store.ConversationMessage
	order          []string // conversation ids in first-seen order
}

func (v *MessageView) Reload() error {
	v.reloadMu.Lock()
	defer v.reloadMu.Unlock()

	rows, err := v.file.ReadAll()
	if err != nil {
		return err
	}

	byConversation := make(map[string][]*store.ConversationMessage)
	var order []string
	for _, row := range rows {
		msg := messageFromRow(row)
		if _, ok := byConversation[msg.ConversationID]; !ok {
			order = append(order, msg.ConversationID)
		}
		byConversation[msg.ConversationID] = append(byConversation[msg.ConversationID], msg)
	}

	v.mu.Lock()
	v.byConversation, v.order, v.loaded = byConversation, order, true
	v.mu.Unlock()
	return nil
}

func (v *MessageView) Invalidate() {
	v.mu.Lock()
	v.byConversation, v.order, v.loaded = nil, nil, false
	v.mu.Unlock()
}

func (v *MessageView) ensureLoaded() error {
	v.mu.RLock()
	loaded := v.loaded
	v.mu.RUnlock()
	if loaded {
		return nil
	}
	return v.Reload()
}

// List returns the messages of one conversation in append order.
func (v *MessageView) List(conversationID string) ([]*store.ConversationMessage, error) {
	if err := v.ensureLoaded(); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]*store.ConversationMessage(nil), v.byConversation[conversationID]...), nil
}

// firstMessages returns the first message of every conversation of a user.
func (v *MessageView) firstMessages(userID string) ([]*store.ConversationMessage, error) {
	if err := v.ensureLoaded(); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	var list []*store.ConversationMessage
	for _, id := range v.order {
		first := v.byConversation[id][0]
		if first.UserID == userID {
			list = append(list, first)
		}
	}
	return list, nil
}

// SubjectView caches the subject file. Listings also include conversations
// that have messages but no subject yet, with an empty title.
type SubjectView struct {
	file     *File
	messages *MessageView

	reloadMu sync.Mutex

	mu       sync.RWMutex
	loaded   bool
	subjects []*store.ConversationSubject
}

func (v *SubjectView) Reload() error {
	v.reloadMu.Lock()
	defer v.reloadMu.Unlock()

	rows, err := v.file.ReadAll()
	if err != nil {
		return err
	}
	subjects := make([]*store.ConversationSubject, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, subjectFromRow(row))
	}

	v.mu.Lock()
	v.subjects, v.loaded = subjects, true
	v.mu.Unlock()
	return nil
}

func (v *SubjectView) Invalidate() {
	v.mu.Lock()
	v.subjects, v.loaded = nil, false
	v.mu.Unlock()
}

// List returns one page of a user's conversations, newest first, and the total count.
func (v *SubjectView) List(find *store.FindConversationSubject) ([]*store.ConversationSubject, int, error) {
	v.mu.RLock()
	loaded := v.loaded
	v.mu.RUnlock()
	if !loaded {
		if err := v.Reload(); err != nil {
			return nil, 0, err
		}
	}

	var list []*store.ConversationSubject
	seen := make(map[string]bool)
	v.mu.RLock()
	for _, s := range v.subjects {
		if s.UserID != find.UserID || seen[s.ConversationID] {
			continue
		}
		seen[s.ConversationID] = true
		list = append(list, s)
	}
	v.mu.RUnlock()

	if v.messages != nil {
		firsts, err := v.messages.firstMessages(find.UserID)
		if err != nil {
			return nil, 0, err
		}
		for _, m := range firsts {
			if seen[m.ConversationID] {
				continue
			}
			seen[m.ConversationID] = true
			list = append(list, &store.ConversationSubject{
				ConversationID: m.ConversationID,
				UserID:         m.UserID,
				CreatedAt:      m.CreatedAt,
			})
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	total := len(list)
	offset, limit := find.Offset, find.Limit
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultSubjectLimit
	}
	if offset >= total {
		return []*store.ConversationSubject{}, total, nil
	}
	end := min(offset+limit, total)
	return list[offset:end], total, nil
}
