package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// TopicStore provides file operations for topic files. Each topic lives
// in one JSON file under the topics directory. It implements Store.
type TopicStore struct {
	mu  sync.Mutex
	dir string
}

// NewTopicStore creates a new TopicStore with the default directory.
func NewTopicStore() *TopicStore {
	return &TopicStore{
		dir: GetTopicsDirPath(),
	}
}

// NewTopicStoreAt creates a TopicStore rooted at dir. Used by tests and
// by callers that keep data outside the config directory.
func NewTopicStoreAt(dir string) *TopicStore {
	return &TopicStore{dir: dir}
}

// GetDir returns the topics directory path.
func (t *TopicStore) GetDir() string {
	return t.dir
}

// EnsureDir creates the topics directory if it doesn't exist.
func (t *TopicStore) EnsureDir() error {
	return os.MkdirAll(t.dir, 0755)
}

// List returns all topic ids, sorted by modification time (newest first).
func (t *TopicStore) List() ([]string, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read topics directory: %w", err)
	}

	type fileInfo struct {
		name    string
		modTime int64
	}

	var files []fileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{
			name:    strings.TrimSuffix(name, ".json"),
			modTime: info.ModTime().Unix(),
		})
	}

	// Sort by modification time (newest first)
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime > files[j].modTime
	})

	result := make([]string, len(files))
	for i, f := range files {
		result[i] = f.name
	}
	return result, nil
}

// Load reads a topic by id.
func (t *TopicStore) Load(topicID string) (*Topic, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked(topicID)
}

func (t *TopicStore) loadLocked(topicID string) (*Topic, error) {
	raw, err := os.ReadFile(t.getPath(topicID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("topic '%s' not found", topicID)
		}
		return nil, fmt.Errorf("failed to read topic: %w", err)
	}
	var topic Topic
	if err := json.Unmarshal(raw, &topic); err != nil {
		return nil, fmt.Errorf("failed to parse topic '%s': %w", topicID, err)
	}
	return &topic, nil
}

// Save writes a topic file.
func (t *TopicStore) Save(topic *Topic) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked(topic)
}

func (t *TopicStore) saveLocked(topic *Topic) error {
	if err := t.EnsureDir(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(topic, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize topic '%s': %w", topic.ID, err)
	}
	return os.WriteFile(t.getPath(topic.ID), raw, 0644)
}

// Delete removes a topic file.
func (t *TopicStore) Delete(topicID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := os.Remove(t.getPath(topicID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete topic: %w", err)
	}
	return nil
}

// Exists checks if a topic exists.
func (t *TopicStore) Exists(topicID string) bool {
	_, err := os.Stat(t.getPath(topicID))
	return err == nil
}

// GetConversations implements Store.
func (t *TopicStore) GetConversations(topicID string) ([]Conversation, error) {
	topic, err := t.Load(topicID)
	if err != nil {
		return nil, err
	}
	return topic.Conversations, nil
}

// UpdateTopicTitle implements Store.
func (t *TopicStore) UpdateTopicTitle(topicID, title string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	topic, err := t.loadLocked(topicID)
	if err != nil {
		return err
	}
	topic.Title = title
	return t.saveLocked(topic)
}

// UpdateConversationTitle implements Store. The conversation is looked up
// across all stored topics.
func (t *TopicStore) UpdateConversationTitle(conversationID, title string) error {
	return t.updateAcrossTopics(func(topic *Topic) bool {
		for i := range topic.Conversations {
			if topic.Conversations[i].ID == conversationID {
				topic.Conversations[i].Title = title
				return true
			}
		}
		return false
	}, fmt.Sprintf("conversation '%s' not found", conversationID))
}

// UpdateMessage implements Store. The message is looked up across all
// stored topics.
func (t *TopicStore) UpdateMessage(messageID, content, reasoning string) error {
	return t.updateAcrossTopics(func(topic *Topic) bool {
		for i := range topic.Conversations {
			msgs := topic.Conversations[i].Messages
			for j := range msgs {
				if msgs[j].ID == messageID {
					msgs[j].Content = content
					msgs[j].Reasoning = reasoning
					return true
				}
			}
		}
		return false
	}, fmt.Sprintf("message '%s' not found", messageID))
}

// updateAcrossTopics applies mutate to each topic until one reports a
// change, then saves that topic. notFound is returned when no topic
// matched.
func (t *TopicStore) updateAcrossTopics(mutate func(*Topic) bool, notFound string) error {
	ids, err := t.List()
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		topic, err := t.loadLocked(id)
		if err != nil {
			continue
		}
		if mutate(topic) {
			return t.saveLocked(topic)
		}
	}
	return fmt.Errorf("%s", notFound)
}

// AddConversation appends a conversation to a topic, creating the topic
// file if needed.
func (t *TopicStore) AddConversation(topicID string, conv Conversation) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	topic, err := t.loadLocked(topicID)
	if err != nil {
		topic = &Topic{ID: topicID}
	}
	topic.Conversations = append(topic.Conversations, conv)
	return t.saveLocked(topic)
}

// UpdateConversationSettings replaces a conversation's settings blob.
func (t *TopicStore) UpdateConversationSettings(topicID, conversationID, settings string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	topic, err := t.loadLocked(topicID)
	if err != nil {
		return err
	}
	for i := range topic.Conversations {
		if topic.Conversations[i].ID == conversationID {
			topic.Conversations[i].Settings = settings
			return t.saveLocked(topic)
		}
	}
	return fmt.Errorf("conversation '%s' not found in topic '%s'", conversationID, topicID)
}

// AddMessage appends a message to a conversation within a topic.
func (t *TopicStore) AddMessage(topicID, conversationID string, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	topic, err := t.loadLocked(topicID)
	if err != nil {
		return err
	}
	for i := range topic.Conversations {
		if topic.Conversations[i].ID == conversationID {
			topic.Conversations[i].Messages = append(topic.Conversations[i].Messages, msg)
			return t.saveLocked(topic)
		}
	}
	return fmt.Errorf("conversation '%s' not found in topic '%s'", conversationID, topicID)
}

func (t *TopicStore) getPath(topicID string) string {
	safeName := sanitizeFileName(topicID)
	if !strings.HasSuffix(safeName, ".json") {
		safeName = safeName + ".json"
	}
	return filepath.Join(t.dir, safeName)
}

// sanitizeFileName removes or replaces characters that are not safe for file names.
func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
