package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/appointment-desk/internal/application"
)

var (
	errBadRequestBody       = errors.New("無効なリクエスト形式です。")
	errInvalidAppointmentID = errors.New("無効な予約 ID です。")
	errInvalidRuleID        = errors.New("無効なルール ID です。")
	errInvalidImageID       = errors.New("無効な画像 ID です。")
	errMissingToken         = errors.New("認証トークンを指定してください")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var conflict *application.TimeConflictError
	switch {
	case errors.Is(err, application.ErrForbidden):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "FORBIDDEN",
			Message:   "この操作を実行する権限がありません。",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "指定されたリソースが見つかりません。"})
	case errors.As(err, &conflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "TIME_CONFLICT",
			Message:   "承認済みの予約と時間が重複しています。",
			Conflict: &conflictDTO{
				AppointmentID: conflict.AppointmentID,
				ArrivalTime:   conflict.Window.Start,
				FinishedTime:  conflict.Window.End,
			},
		})
	case errors.Is(err, application.ErrTimeConflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "TIME_CONFLICT", Message: "承認済みの予約と時間が重複しています。"})
	case errors.Is(err, application.ErrDateClosed):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "DATE_CLOSED", Message: "指定された日は休業日のため予約できません。"})
	case errors.Is(err, application.ErrQuotaExceeded):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "QUOTA_EXCEEDED", Message: "申し込み中の予約が上限に達しています。"})
	case errors.Is(err, application.ErrDuplicateRule):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "DUPLICATE_RULE", Message: "同じ種類と値のルールが既に登録されています。"})
	case errors.Is(err, application.ErrConcurrentUpdate):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "CONCURRENT_UPDATE", Message: "他の操作と競合しました。再度お試しください。"})
	default:
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			details := localizeValidationErrors(vErr)
			r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				ErrorCode: "VALIDATION_FAILED",
				Message:   "入力内容に誤りがあります。",
				Errors:    details,
			})
			return
		}

		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "サーバー内部でエラーが発生しました。"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	return handlerLogger(ctx, r.logger, "responder", "")
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusUnauthorized:
		return "認証が必要です。"
	case http.StatusForbidden:
		return "この操作を実行する権限がありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "requester is required":
		return "申込者を特定できません。"
	case "user_email is required":
		return "メールアドレスは必須です。"
	case "user_email must be a valid address":
		return "メールアドレスの形式が不正です。"
	case "date must be YYYY-MM-DD":
		return "日付は YYYY-MM-DD 形式で指定してください。"
	case "month must be YYYY-MM":
		return "月は YYYY-MM 形式で指定してください。"
	case "requested_time must be HH:MM":
		return "希望時刻は HH:MM 形式で指定してください。"
	case "arrival_time must be HH:MM":
		return "来店時刻は HH:MM 形式で指定してください。"
	case "finished_time must be HH:MM":
		return "終了時刻は HH:MM 形式で指定してください。"
	case "arrival_time must be before finished_time":
		return "終了時刻は来店時刻より後である必要があります。"
	case "description is required":
		return "ご相談内容は必須です。"
	case "status must be approved or rejected":
		return "ステータスには approved または rejected を指定してください。"
	case "status must be pending, approved or rejected":
		return "ステータスには pending、approved、rejected のいずれかを指定してください。"
	case "type must be one of weekday, specific_date, weekly_hours, date_override":
		return "ルール種別が不正です。"
	case "value must be a weekday index 0-6":
		return "曜日は 0 から 6 の数値で指定してください。"
	case "value must be a date in YYYY-MM-DD format":
		return "日付は YYYY-MM-DD 形式で指定してください。"
	case "start_time and end_time must be set together":
		return "開始時刻と終了時刻は両方指定してください。"
	case "start_time must be HH:MM":
		return "開始時刻は HH:MM 形式で指定してください。"
	case "end_time must be HH:MM":
		return "終了時刻は HH:MM 形式で指定してください。"
	case "start_time must be before end_time":
		return "終了時刻は開始時刻より後である必要があります。"
	default:
		if strings.HasPrefix(message, "cannot change status from ") {
			return "この予約のステータスは変更できません。"
		}
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Conflict  *conflictDTO      `json:"conflict,omitempty"`
}

type conflictDTO struct {
	AppointmentID string `json:"appointment_id"`
	ArrivalTime   string `json:"arrival_time"`
	FinishedTime  string `json:"finished_time"`
}
