package service

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastToStudent(studentID string, msgType string, payload interface{})
}

const (
	MsgAnswerResult         = "answer_result"
	MsgSessionCompleted     = "session_completed"
	MsgDiagnosticsCompleted = "diagnostics_completed"
	MsgSessionAbandoned     = "session_abandoned"
)

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastToStudent(string, string, interface{}) {}
