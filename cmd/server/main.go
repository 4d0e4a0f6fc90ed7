package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"omaope/internal/api"
	"omaope/internal/app"
	"omaope/internal/httputil"
	"omaope/internal/llm"
	"omaope/internal/quiz"
	"omaope/internal/session"
	"omaope/internal/upload"
	"omaope/web"
)

// multipart parts beyond this size are spooled to disk by net/http.
const multipartMemory = 8 << 20

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx)
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			deps.Log.Warn("failed to release dependencies", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		deps.Log.Info("quiz server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	stop()
	deps.Log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		deps.Log.Error("server forced to shutdown", "err", err)
	}
}

func newRouter(deps app.Deps) http.Handler {
	r := httputil.NewRouter(deps.Log, deps.Config.RequestTimeout())
	r.Use(httputil.CORS(deps.Config.CORSOrigins))

	r.Get(api.RouteHealth, httputil.HealthHandler(deps))

	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(deps.Config.CookieSecure))
		r.Post(api.RouteUploadImages, uploadHandler(deps))
		r.Post(api.RouteChat, chatHandler(deps))
		r.Post(api.RouteCheckAnswer, checkAnswerHandler(deps))
		r.Post(api.RouteNextQuestion, nextQuestionHandler(deps))
	})

	r.Get("/*", web.Handler().ServeHTTP)
	return r
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxBody := deps.Config.MaxUploadSize
	maxImages := deps.Config.MaxImages
	if maxImages <= 0 || maxImages > api.MaxImages {
		maxImages = api.MaxImages
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := deps.Log.With("session_id", session.IDFromContext(ctx))

		if maxBody > 0 {
			if r.ContentLength > maxBody {
				httputil.Fail(log, w, fmt.Sprintf("upload too large (max %d bytes)", maxBody), nil, http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}

		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				httputil.Fail(log, w, fmt.Sprintf("upload too large (max %d bytes)", maxBody), err, http.StatusRequestEntityTooLarge)
			case errors.Is(err, http.ErrNotMultipart):
				httputil.FailErr(log, w, quiz.ErrNoImages)
			default:
				httputil.Fail(log, w, "invalid multipart payload", err, http.StatusBadRequest)
			}
			return
		}
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				log.Warn("failed to remove multipart temp files", "err", err)
			}
		}()

		headers := r.MultipartForm.File[api.ImagesField]
		if len(headers) == 0 {
			httputil.FailErr(log, w, quiz.ErrNoImages)
			return
		}
		if len(headers) > maxImages {
			httputil.FailErr(log, w, fmt.Errorf("%w (max %d)", quiz.ErrTooManyImages, maxImages))
			return
		}

		batch, err := upload.SpoolAll(deps.Config.UploadDir, headers)
		if err != nil {
			httputil.FailErr(log, w, err)
			return
		}
		defer func() {
			if err := batch.Remove(); err != nil {
				log.Warn("failed to remove uploaded files", "err", err)
			}
		}()

		files := make([]quiz.Material, len(batch))
		for i, f := range batch {
			files[i] = f
		}
		qa, err := deps.Quiz.Ingest(ctx, session.IDFromContext(ctx), files)
		if err != nil {
			httputil.FailErr(log, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, api.QuestionResponse{Question: qa.Question, Answer: qa.Answer})
	}
}

func chatHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		reply, err := deps.Quiz.Chat(r.Context(), req.Question)
		if err != nil {
			status := httputil.StatusFor(err)
			if errors.Is(err, llm.ErrNoChoices) {
				status = http.StatusInternalServerError
			}
			httputil.Fail(deps.Log, w, httputil.MessageFor(err, status), err, status)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, api.ChatResponse{Reply: reply})
	}
}

func checkAnswerHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := deps.Log.With("session_id", session.IDFromContext(ctx))

		var req api.CheckAnswerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(log, w, err)
			return
		}

		evaluation, err := deps.Quiz.CheckAnswer(ctx, session.IDFromContext(ctx), req.UserAnswer)
		if err != nil {
			httputil.FailErr(log, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, api.CheckAnswerResponse{Evaluation: evaluation})
	}
}

func nextQuestionHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := deps.Log.With("session_id", session.IDFromContext(ctx))

		qa, err := deps.Quiz.NextQuestion(ctx, session.IDFromContext(ctx))
		if err != nil {
			httputil.FailErr(log, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, api.QuestionResponse{Question: qa.Question, Answer: qa.Answer})
	}
}
