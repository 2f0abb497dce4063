package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/skymind/skymind/data"
	"github.com/skymind/skymind/service"
)

var (
	chatTopicID        string
	chatConversationID string
	chatAssistantID    string
	chatCascadeWait    time.Duration

	reasoningColor = color.New(color.FgHiBlack)
	titleColor     = color.New(color.FgCyan)

	chatCmd = &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send a chat prompt and stream the reply",
		Long: `Sends a prompt to the configured model and streams the reply to stdout.
The reply is persisted to the topic store, then conversation and topic
titles are generated in the background.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runChat(args[0])
		},
	}
)

func init() {
	chatCmd.Flags().StringVarP(&chatTopicID, "topic", "t", "", "Topic id to chat under (created when empty)")
	chatCmd.Flags().StringVarP(&chatConversationID, "conversation", "c", "", "Conversation id to append to (created when empty)")
	chatCmd.Flags().StringVarP(&chatAssistantID, "assistant", "a", "", "Assistant id to attribute the stream to")
	chatCmd.Flags().DurationVarP(&chatCascadeWait, "cascade-wait", "w", 15*time.Second, "How long to wait for title generation after the reply")
	rootCmd.AddCommand(chatCmd)
}

func runChat(prompt string) {
	cfg := data.NewConfigStore()
	store := data.NewTopicStore()

	engine := service.NewEngine(store, cfg)
	engine.Start()
	defer engine.Close()

	topicID, conversationID, aiMessageID, err := seedConversation(store, prompt)
	if err != nil {
		service.Errorf("Failed to prepare conversation: %v", err)
		os.Exit(1)
	}

	// Subscribe before dispatch so no delta can slip past.
	updates := make(chan service.StreamNotify, 256)
	engine.Registry().Subscribe(updates)
	defer engine.Registry().Unsubscribe(updates)

	streamID, err := engine.ChatPrompt(service.StreamMetadata{
		ConversationID: conversationID,
		TopicID:        topicID,
		AssistantID:    chatAssistantID,
		AIMessageID:    aiMessageID,
	}, prompt)
	if err != nil {
		service.Errorf("Failed to start chat: %v", err)
		os.Exit(1)
	}

	if !streamReply(updates, streamID) {
		os.Exit(1)
	}
	waitForTitles(updates, chatCascadeWait)
	printTitles(store, topicID, conversationID)
}

// seedConversation makes sure the topic and conversation exist and adds
// the user message plus an empty AI message for the engine to fill in.
func seedConversation(store *data.TopicStore, prompt string) (topicID, conversationID, aiMessageID string, err error) {
	topicID = chatTopicID
	if topicID == "" {
		topicID = uuid.NewString()
	}
	conversationID = chatConversationID
	userMessageID := uuid.NewString()
	aiMessageID = uuid.NewString()

	settings, _ := json.Marshal(map[string]string{"currentSendId": userMessageID})
	messages := []data.Message{
		{ID: userMessageID, Role: "user", Content: prompt},
		{ID: aiMessageID, Role: "assistant"},
	}

	if conversationID == "" {
		conversationID = uuid.NewString()
		err = store.AddConversation(topicID, data.Conversation{
			ID:       conversationID,
			Title:    service.DefaultConversationTitle,
			Settings: string(settings),
			Messages: messages,
		})
		return
	}

	for _, msg := range messages {
		if err = store.AddMessage(topicID, conversationID, msg); err != nil {
			return
		}
	}
	err = store.UpdateConversationSettings(topicID, conversationID, string(settings))
	return
}

// streamReply prints the reply as it arrives. Returns false when the
// stream ended in an error.
func streamReply(updates <-chan service.StreamNotify, streamID string) bool {
	for n := range updates {
		if n.StreamID != streamID {
			continue
		}
		switch n.Status {
		case service.StatusData:
			if n.Reasoning != "" {
				reasoningColor.Print(n.Reasoning)
			}
			if n.Data != "" {
				fmt.Print(n.Data)
			}
		case service.StatusFinished:
			fmt.Println()
			return true
		case service.StatusError:
			fmt.Println()
			service.Errorf("Stream failed: %s", n.Data)
			return false
		case service.StatusStopped:
			fmt.Println()
			return false
		}
	}
	return false
}

// waitForTitles drains updates until the topic-title generation finishes
// or the deadline passes. Title cascades are best-effort, so a timeout is
// a normal outcome.
func waitForTitles(updates <-chan service.StreamNotify, wait time.Duration) {
	deadline := time.After(wait)
	for {
		select {
		case <-deadline:
			return
		case n, ok := <-updates:
			if !ok {
				return
			}
			if n.Type == service.StreamTypeTopicTitle &&
				(n.Status == service.StatusFinished || n.Status == service.StatusError) {
				// Give the cascade a beat to persist the title.
				time.Sleep(100 * time.Millisecond)
				return
			}
		}
	}
}

func printTitles(store *data.TopicStore, topicID, conversationID string) {
	topic, err := store.Load(topicID)
	if err != nil {
		return
	}
	if topic.Title != "" {
		titleColor.Printf("Topic: %s\n", topic.Title)
	}
	for _, conv := range topic.Conversations {
		if conv.ID == conversationID && conv.Title != "" && conv.Title != service.DefaultConversationTitle {
			titleColor.Printf("Conversation: %s\n", conv.Title)
		}
	}
}
