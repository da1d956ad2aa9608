package rbac

const (
	PermQuizView         = "quiz:view"
	PermAttemptCreate    = "attempt:create"
	PermAttemptAnswer    = "attempt:answer"
	PermAttemptSubmit    = "attempt:submit"
	PermAttemptViewOwn   = "attempt:view-own"
	PermAttemptViewAll   = "attempt:view-all"
	PermCertificateCheck = "certificate:check"
)

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// Default policy. Instructors read every attempt but never take quizzes.
var RolePermissions = map[string][]string{
	RoleStudent: {
		PermQuizView,
		PermAttemptCreate,
		PermAttemptAnswer,
		PermAttemptSubmit,
		PermAttemptViewOwn,
		PermCertificateCheck,
	},
	RoleInstructor: {
		PermQuizView,
		PermAttemptViewOwn,
		PermAttemptViewAll,
		PermCertificateCheck,
	},
	RoleAdmin: {
		"*", // everything
	},
}
