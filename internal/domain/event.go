package domain

const (
	EventNameNoticeRaised       = "notice.raised"
	EventNameQuizCompleted      = "quiz.completed"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventNoticeRaised struct {
	Notice Notice
}

func (EventNoticeRaised) Name() string { return EventNameNoticeRaised }

type EventQuizCompleted struct {
	Attempt    Attempt
	CourseCode string
}

func (EventQuizCompleted) Name() string { return EventNameQuizCompleted }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
