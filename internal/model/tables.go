package model

const (
	LeadsTable             = "Leads"
	ConversationsTable     = "Conversations"
	OpenConversationsTable = "OpenConversations"
	QueueEntriesTable      = "QueueEntries"
	MessagesTable          = "Messages"
	AgentsTable            = "Agents"
)

// PhoneSuffixLength is the number of trailing digits indexed for lead
// candidate lookups. Short enough to keep the byPhoneSuffix fan-out
// bounded, long enough to keep candidate sets small.
const PhoneSuffixLength = 4

type LeadItem struct {
	LeadID             string   `dynamodbav:"leadId"`
	Name               string   `dynamodbav:"name"`
	Phone              string   `dynamodbav:"phone"`
	PhoneSuffix        string   `dynamodbav:"phoneSuffix"`
	Pipeline           string   `dynamodbav:"pipeline"`
	Tags               []string `dynamodbav:"tags,omitempty"`
	LastMessagePreview string   `dynamodbav:"lastMessagePreview,omitempty"`
	LastMessageAt      string   `dynamodbav:"lastMessageAt,omitempty"`
	CreatedAt          string   `dynamodbav:"createdAt"`
	UpdatedAt          string   `dynamodbav:"updatedAt"`
}

type AgentItem struct {
	AgentID            string `dynamodbav:"agentId"`
	Name               string `dynamodbav:"name"`
	Email              string `dynamodbav:"email"`
	PasswordHash       string `dynamodbav:"passwordHash"`
	PipelineType       string `dynamodbav:"pipelineType"`
	IsOnline           bool   `dynamodbav:"isOnline"`
	IsActive           bool   `dynamodbav:"isActive"`
	CurrentChatCount   int    `dynamodbav:"currentChatCount"`
	MaxConcurrentChats int    `dynamodbav:"maxConcurrentChats"`
	CreatedAt          string `dynamodbav:"createdAt"`
}
