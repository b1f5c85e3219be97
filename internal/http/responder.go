package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/slot-booking/internal/application"
)

var (
	errBadRequestBody        = errors.New("無効なリクエスト形式です。")
	errInvalidReservationID  = errors.New("無効な予約 ID です。")
	errMissingSessionToken   = errors.New("認証トークンを指定してください")
	errAdministratorRequired = errors.New("この操作を実行する権限がありません。")
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

	switch {
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "AUTH_FORBIDDEN",
			Message:   "この操作を実行する権限がありません。",
		})
	case errors.Is(err, application.ErrInvalidCredentials):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "AUTH_INVALID_CREDENTIALS",
			Message:   "メールアドレスまたはパスワードが正しくありません",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "指定されたリソースが見つかりません。"})
	case errors.Is(err, application.ErrSlotFull):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "SLOT_FULL",
			Message:   "この枠は満席です。",
		})
	case errors.Is(err, application.ErrCompanyDailyLimit):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "COMPANY_DAILY_LIMIT",
			Message:   "同じ日にすでに予約があります。",
		})
	case errors.Is(err, application.ErrDuplicateEmail):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "DUPLICATE_EMAIL",
			Message:   "このメールアドレスはすでに登録されています。",
		})
	case errors.Is(err, application.ErrConflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "CONFLICT",
			Message:   localizedStatusMessage(http.StatusConflict),
		})
	case errors.Is(err, application.ErrMismatch):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			Message: "入力内容に誤りがあります。",
			Errors:  map[string]string{"confirm_password": "確認用パスワードが一致しません。"},
		})
	case errors.Is(err, application.ErrDataIntegrity):
		r.loggerFor(ctx).ErrorContext(ctx, "stored data is inconsistent", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{
			ErrorCode: "DATA_INTEGRITY",
			Message:   "サーバー内部でエラーが発生しました。",
		})
	default:
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			details := localizeValidationErrors(vErr)
			r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				Message: "入力内容に誤りがあります。",
				Errors:  details,
			})
			return
		}

		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "サーバー内部でエラーが発生しました。"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
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
	case http.StatusTooManyRequests:
		return "リクエストが多すぎます。しばらくしてから再度お試しください。"
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
	case "email is required":
		return "メールアドレスは必須です。"
	case "email is invalid":
		return "メールアドレスの形式が不正です。"
	case "company is required":
		return "会社名は必須です。"
	case "password is required":
		return "パスワードは必須です。"
	case "new password is required":
		return "新しいパスワードは必須です。"
	case "date must be YYYY-MM-DD":
		return "日付は YYYY-MM-DD 形式で指定してください。"
	case "from must be YYYY-MM-DD":
		return "開始日は YYYY-MM-DD 形式で指定してください。"
	case "to must be YYYY-MM-DD":
		return "終了日は YYYY-MM-DD 形式で指定してください。"
	case "to must not be before from":
		return "終了日は開始日以降である必要があります。"
	case "slot_id is required":
		return "枠 ID は必須です。"
	default:
		if strings.HasPrefix(message, "range must not exceed ") {
			days := strings.TrimSuffix(strings.TrimPrefix(message, "range must not exceed "), " days")
			return "期間は " + days + " 日以内で指定してください。"
		}
		if strings.HasPrefix(message, "unknown weekday:") {
			return "不正な曜日が含まれています: " + strings.TrimSpace(strings.TrimPrefix(message, "unknown weekday:"))
		}
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
