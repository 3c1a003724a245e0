package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// CLIの表示出力と混ざらないよう、既定ではos.Stderrに出力する。
// ログレベルはCROPID_LOG_LEVEL（debug/info/warn/error）で制御する。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	logger := Setup(w, levelFromEnv())
	slog.SetDefault(logger)
}

// levelFromEnv は環境変数からログレベルを解決する。未設定・不正値はInfo。
func levelFromEnv() slog.Level {
	switch os.Getenv("CROPID_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
