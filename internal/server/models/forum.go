package models

import "time"

type Thread struct {
	ID        int64
	CreatorID int64
	Title     string
	CreatedAt time.Time
}

type Message struct {
	ID        int64
	ThreadID  int64
	CreatorID int64
	Content   string
	CreatedAt time.Time
}

// MessageView is a message with its author resolved to a username.
type MessageView struct {
	ID      int64  `json:"id"`
	Creator string `json:"creator"`
	Content string `json:"content"`
}

// ThreadSummary is one row of the thread list.
type ThreadSummary struct {
	ID            int64        `json:"id"`
	Creator       string       `json:"creator"`
	Title         string       `json:"title"`
	LatestMessage *MessageView `json:"latest_message"`
}

// ThreadDetail is a single thread with all of its messages, oldest first.
type ThreadDetail struct {
	ID       int64         `json:"id"`
	Creator  string        `json:"creator"`
	Title    string        `json:"title"`
	Messages []MessageView `json:"messages"`
}
