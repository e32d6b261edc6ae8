// Package api holds the JSON bodies of the REST interface, shared by the
// server and the Go client.
package api

import "time"

type AddMessageRequest struct {
	From    string `json:"from" validate:"required,max=128"`
	To      string `json:"to" validate:"required,max=128"`
	Message string `json:"message" validate:"required"`
}

type AddMessageResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type GetMessagesRequest struct {
	From  string `json:"from" validate:"required,max=128"`
	To    string `json:"to" validate:"required,max=128"`
	Limit *int   `json:"limit,omitempty" validate:"omitempty,min=1"`
}

// Message is a history entry seen from the requester, FromSelf tells the direction.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Message   string    `json:"message"`
	FromSelf  bool      `json:"fromSelf"`
	CreatedAt time.Time `json:"createdAt"`
	Delivered bool      `json:"delivered"`
}

type GetMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type User struct {
	ID        string    `json:"_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type AuthResponse struct {
	Status bool   `json:"status"`
	User   *User  `json:"user,omitempty"`
	Token  string `json:"token,omitempty"`
	Msg    string `json:"msg,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}
