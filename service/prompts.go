package service

import (
	"fmt"
	"strings"
)

// DefaultConversationTitle is the placeholder title a fresh conversation
// carries before a generated one replaces it. Generated titles equal to
// it are never persisted.
const DefaultConversationTitle = "新对话"

// BuildConversationTitlePrompt builds the generation prompt for a
// conversation title from the seed user message and the AI response.
func BuildConversationTitlePrompt(userMessage, aiResponse string) string {
	return fmt.Sprintf("请根据以下对话内容生成一个简洁、准确的对话标题（10-20个字）：\n\n用户输入：%s\nAI回复：%s\n\n请直接返回标题，不要包含其他内容。", userMessage, aiResponse)
}

// BuildTopicTitlePrompt builds the generation prompt for a topic title
// from the titles of its conversations.
func BuildTopicTitlePrompt(titles []string) string {
	var sb strings.Builder
	for i, title := range titles {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, title)
	}
	return fmt.Sprintf("请根据以下对话标题列表生成一个概括性和吸引力的话题标题（8-15个字）：\n\n对话标题列表：\n%s\n\n请直接返回话题标题，不要包含其他内容。", sb.String())
}

// BuildSystemPromptRequest builds the request sent to generate an
// assistant system prompt from its name, description and optional user
// requirements.
func BuildSystemPromptRequest(name, description, userInput string) string {
	if userInput == "" {
		return fmt.Sprintf("请根据以下信息生成一个专业的AI助手系统提示词：\n助手名称：%s\n助手描述：%s\n要求：提示词要以第二人称定义助手的角色和专业领域，明确助手的专业技能、回答风格和行为准则。", name, description)
	}
	return fmt.Sprintf("请根据以下信息生成一个专业的AI助手系统提示词：\n助手名称：%s\n助手描述：%s\n用户需求：%s\n要求：提示词要以第二人称定义助手的角色和专业领域，明确助手的专业技能、回答风格和行为准则。", name, description, userInput)
}

// BuildOptimizePromptRequest builds the request sent to optimize a user
// prompt while preserving its intent.
func BuildOptimizePromptRequest(original string) string {
	return fmt.Sprintf("请优化以下用户提示词，使其更加清晰、准确和有效。保持用户原意，提升表达清晰度，添加必要的上下文信息，使用更精确的词汇，确保问题结构合理。\n\n原始提示词：%s\n\n请直接返回优化后的提示词，不要包含其他解释。", original)
}
