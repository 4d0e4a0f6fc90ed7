// Package api holds the HTTP contract shared by the server, the embedded
// browser client and the terminal client.
package api

// Routes. The browser script uses the same literals; see web/contract_test.go.
const (
	RouteUploadImages = "/upload-Images"
	RouteChat         = "/chat"
	RouteCheckAnswer  = "/check-answer"
	RouteNextQuestion = "/next-question"
	RouteHealth       = "/healthz"
)

// ImagesField is the multipart field carrying uploaded study material.
const ImagesField = "images"

// MaxImages is the largest batch accepted by RouteUploadImages.
const MaxImages = 10

// FallbackMessage is shown in a pane when a request fails.
const FallbackMessage = "Jotain meni pieleen. Yritä uudelleen myöhemmin."

type QuestionResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type ChatRequest struct {
	Question string `json:"question" validate:"required,notblank,max=4000"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

// CheckAnswerRequest carries the user's answer. CorrectAnswer is accepted for
// compatibility with older clients and ignored: grading always uses the
// answer stored in the session.
type CheckAnswerRequest struct {
	UserAnswer    string `json:"user_answer" validate:"required,notblank,max=4000"`
	CorrectAnswer string `json:"correct_answer,omitempty"`
}

type CheckAnswerResponse struct {
	Evaluation string `json:"evaluation"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Sender identifies who wrote a rendered chat message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Pane identifies one of the two message panes of the chat UI.
type Pane string

const (
	PaneMainChat Pane = "chatbox"
	PaneQuizChat Pane = "omaopebox"
)

// ChatMessage is a rendered line in a pane. Never persisted.
type ChatMessage struct {
	Text   string
	Sender Sender
	Pane   Pane
}
