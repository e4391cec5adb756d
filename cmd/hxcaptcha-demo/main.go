// Command hxcaptcha-demo serves a sign-up form protected by a TrustCaptcha
// widget.
//
// Settings come from flags or HXCAPTCHA_* environment variables:
//
//	HXCAPTCHA_SITEKEY=... HXCAPTCHA_SCRIPT_URL=... hxcaptcha-demo --addr :8080
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pthm/hxcaptcha"
	hxcaptchaecho "github.com/pthm/hxcaptcha/adapters/echo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultAddr    = ":8080"
	defaultLogFile = "./logs/hxcaptcha-demo.log"
	defaultHTMXURL = "https://unpkg.com/htmx.org@2.0.4"
)

func main() {
	v, err := loadSettings(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := newLogger(v.GetString("log-level"), v.GetString("log-file"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	hxcaptcha.SetLogger(log)

	if err := run(v, log); err != nil {
		log.Fatal("demo server failed", zap.Error(err))
	}
}

func loadSettings(args []string) (*viper.Viper, error) {
	flags := pflag.NewFlagSet("hxcaptcha-demo", pflag.ContinueOnError)
	flags.String("addr", defaultAddr, "listen address")
	flags.String("config", "", "widget configuration file (TOML)")
	flags.String("sitekey", "", "sitekey, overrides the configuration file")
	flags.String("license", "", "license key, overrides the configuration file")
	flags.String("key", "", "secret used to sign widget props")
	flags.String("script-url", "", "URL of the TrustCaptcha browser script")
	flags.String("htmx-url", defaultHTMXURL, "URL of the htmx script")
	flags.Duration("session-ttl", hxcaptcha.DefaultSessionTTL, "idle widget lifetime")
	flags.String("log-file", defaultLogFile, "log file, empty to log to stdout only")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("HXCAPTCHA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return v, nil
}

// newLogger writes JSON logs to stdout and, if file is set, to a rotated
// log file.
func newLogger(level, file string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), lvl),
	}
	if file != "" {
		lj := &lumberjack.Logger{Filename: file, MaxSize: 25, MaxBackups: 5, Compress: true}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(lj), lvl))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// widgetConfig reads the optional TOML file and applies overrides.
func widgetConfig(v *viper.Viper) (hxcaptcha.Config, error) {
	var cfg hxcaptcha.Config
	if path := v.GetString("config"); path != "" {
		loaded, err := hxcaptcha.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if s := v.GetString("sitekey"); s != "" {
		cfg.Sitekey = s
	}
	if s := v.GetString("license"); s != "" {
		cfg.License = s
	}
	if _, err := hxcaptcha.Normalize(cfg); err != nil {
		return cfg, fmt.Errorf("widget configuration: %w", err)
	}
	return cfg, nil
}

func run(v *viper.Viper, log *zap.Logger) error {
	cfg, err := widgetConfig(v)
	if err != nil {
		return err
	}
	scriptURL := v.GetString("script-url")
	if scriptURL == "" {
		log.Warn("no TrustCaptcha script configured; widgets will not load in the browser")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(log))

	var opts []hxcaptchaecho.Option
	if key := v.GetString("key"); key != "" {
		opts = append(opts, hxcaptchaecho.WithKey([]byte(key)))
	}
	reg := hxcaptchaecho.Mount(e, opts...)

	captcha := hxcaptcha.NewCaptcha(
		hxcaptcha.WithSessionTTL(v.GetDuration("session-ttl")),
		hxcaptcha.WithCallbacks(hxcaptcha.Callbacks{
			OnCaptchaSolved: func(ev hxcaptcha.Event) {
				log.Info("captcha solved", zap.String("widget", ev.WidgetID))
			},
			OnCaptchaFailed: func(ev hxcaptcha.Event) {
				log.Warn("captcha failed",
					zap.String("widget", ev.WidgetID),
					zap.String("code", string(ev.Err.Code)),
					zap.String("message", ev.Err.Message),
				)
			},
		}),
	)
	defer captcha.Close()
	reg.Add(captcha)

	assets := pageAssets{htmxURL: v.GetString("htmx-url"), scriptURL: scriptURL}
	e.GET("/", func(c echo.Context) error {
		return hxcaptchaecho.Render(c, signupPage(assets, captcha.Widget(cfg, loadingPlaceholder())))
	})
	field := cfg.WithDefaults().TokenFieldName
	e.POST("/submit", func(c echo.Context) error {
		log.Info("form submitted",
			zap.String("email", c.FormValue("email")),
			zap.Int("token_length", len(hxcaptchaecho.Token(c))),
		)
		return hxcaptchaecho.Render(c, submittedPage(assets))
	}, hxcaptchaecho.RequireToken(field))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := v.GetString("addr")
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr))
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}

func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			log.Debug("request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}
