package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"
	ErrNotAttemptOwner   ErrCode = "NOT_ATTEMPT_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotFound ErrCode = "EXAM_NOT_FOUND"

	// ─── Attempt-specific ──────────────────────────────────────────────
	ErrAttemptNotFound   ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptInProgress ErrCode = "ATTEMPT_ALREADY_IN_PROGRESS"
	ErrAttemptNotActive  ErrCode = "ATTEMPT_NOT_ACTIVE"
	ErrStaleWrite        ErrCode = "STALE_WRITE"
	ErrIndexOutOfRange   ErrCode = "INDEX_OUT_OF_RANGE"
	ErrDeadlineExceeded  ErrCode = "DEADLINE_EXCEEDED"
	ErrUnknownQuestion   ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidAnswer     ErrCode = "INVALID_ANSWER"
	ErrPauseNotAllowed   ErrCode = "PAUSE_NOT_ALLOWED"
	ErrNavigationLocked  ErrCode = "NAVIGATION_LOCKED"
	ErrInvalidTelemetry  ErrCode = "INVALID_TELEMETRY"
	ErrSubmitPending     ErrCode = "SUBMIT_PENDING"
	ErrResultNotReady    ErrCode = "RESULT_NOT_READY"
	ErrResultWithheld    ErrCode = "RESULT_WITHHELD"
	ErrGradingFailed     ErrCode = "GRADING_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."
	case ErrNotAttemptOwner:
		return "Percobaan ujian ini bukan milik Anda."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Ujian tidak ditemukan atau belum dipublikasikan."

	// ─── Attempt-specific ──────────────────────────────────────────────
	case ErrAttemptNotFound:
		return "Percobaan ujian tidak ditemukan."
	case ErrAttemptInProgress:
		return "Anda masih memiliki percobaan yang sedang berlangsung untuk ujian ini."
	case ErrAttemptNotActive:
		return "Percobaan ujian tidak dalam status yang mengizinkan tindakan ini."
	case ErrStaleWrite:
		return "Jawaban yang lebih baru sudah tersimpan."
	case ErrIndexOutOfRange:
		return "Nomor soal di luar jangkauan."
	case ErrDeadlineExceeded:
		return "Waktu ujian telah habis."
	case ErrUnknownQuestion:
		return "Soal tidak ditemukan dalam ujian ini."
	case ErrInvalidAnswer:
		return "Format jawaban tidak sesuai dengan jenis soal."
	case ErrPauseNotAllowed:
		return "Ujian ini tidak dapat dijeda."
	case ErrNavigationLocked:
		return "Ujian ini tidak mengizinkan kembali ke soal sebelumnya."
	case ErrInvalidTelemetry:
		return "Data telemetri tidak valid."
	case ErrSubmitPending:
		return "Pengumpulan sedang diproses. Silakan coba lagi sebentar."
	case ErrResultNotReady:
		return "Hasil ujian belum tersedia."
	case ErrResultWithheld:
		return "Hasil ujian belum dipublikasikan."
	case ErrGradingFailed:
		return "Penilaian gagal. Jawaban Anda sudah tersimpan; hubungi pengawas."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
