package dto

import "time"

// OpenChatRequest starts or resumes a conversation. At least one of the ids is required.
type OpenChatRequest struct {
	FarmerID  *uint `json:"farmer_id,omitempty" validate:"omitempty,gt=0"`
	ProductID *uint `json:"product_id,omitempty" validate:"omitempty,gt=0"`
}

type ChatRoomDTO struct {
	ID                uint      `json:"id"`
	State             string    `json:"state"`
	FarmerProfileID   uint      `json:"farmer_profile_id"`
	FarmerName        string    `json:"farmer_name"`
	CustomerProfileID uint      `json:"customer_profile_id"`
	CustomerName      string    `json:"customer_name"`
	ProductID         *uint     `json:"product_id,omitempty"`
	ProductName       string    `json:"product_name,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type ChatRoomResponse struct {
	Room    ChatRoomDTO `json:"room"`
	Created bool        `json:"created"`
	Changed bool        `json:"changed"`
}

type PostMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type MessageDTO struct {
	ID              uint      `json:"id"`
	Kind            string    `json:"kind"`
	Text            string    `json:"text"`
	AuthorAccountID *uint     `json:"author_account_id,omitempty"`
	AuthorName      string    `json:"author_name"`
	IsSystem        bool      `json:"is_system"`
	IsFarmer        bool      `json:"is_farmer"`
	IsMine          bool      `json:"is_mine"`
	Timestamp       string    `json:"timestamp"`
	CreatedAt       time.Time `json:"created_at"`
}

// ChatView is what a participant may see of a room right now
type ChatView struct {
	Room         ChatRoomDTO  `json:"room"`
	ViewerRole   string       `json:"viewer_role"`
	CanPost      bool         `json:"can_post"`
	ReadOnly     bool         `json:"read_only"`
	Terminal     bool         `json:"terminal"`
	Notice       string       `json:"notice,omitempty"`
	Messages     []MessageDTO `json:"messages"`
	FarmerRating *RatingDTO   `json:"farmer_rating,omitempty"`
}

type ChatSummaryDTO struct {
	Room          ChatRoomDTO `json:"room"`
	Counterpart   string      `json:"counterpart"`
	LatestMessage *MessageDTO `json:"latest_message,omitempty"`
}

type ChatListResponse struct {
	Role         string           `json:"role"`
	PendingCount int              `json:"pending_count"`
	Chats        []ChatSummaryDTO `json:"chats"`
}
