package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"lenstracker-reminders/config"
	"lenstracker-reminders/internal/db"
	"lenstracker-reminders/internal/kv"
	"lenstracker-reminders/internal/notification"
	"lenstracker-reminders/internal/store"
	"lenstracker-reminders/internal/sweep"
)

// app is the wired set of components shared by serve and sweep.
type app struct {
	store   store.Store
	push    notification.PushSender
	engine  *sweep.Engine
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		return nil, errors.New("VAPID keys must be configured (push.vapid_public_key / VAPID_PUBLIC_KEY)")
	}

	backend, closer, err := newBackend(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}
	a := &app{store: store.New(backend)}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.push = notification.NewWebPushSender(webPushOptions(cfg.Push))

	email := newEmailSender(cfg.Email)
	if email == nil {
		log.Info("Email reminders disabled")
	}

	a.engine = sweep.NewEngine(a.store, a.push, email, log.WithField("component", "sweep"), sweep.Options{
		Workers:  cfg.Sweep.Workers,
		ClickURL: cfg.Push.ClickURL,
	})
	return a, nil
}

func webPushOptions(cfg config.PushConfig) *webpush.Options {
	opts := &webpush.Options{
		VAPIDPublicKey:  cfg.PublicKey,
		VAPIDPrivateKey: cfg.PrivateKey,
		Subscriber:      cfg.Subject,
		TTL:             cfg.TTL,
		Urgency:         webpush.UrgencyNormal,
	}
	if cfg.TimeoutSeconds > 0 {
		opts.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	return opts
}

// newBackend opens the key-value backend selected by cfg.Driver. The returned
// closer may be nil.
func newBackend(ctx context.Context, cfg config.StoreConfig, log logrus.FieldLogger) (kv.Store, func() error, error) {
	switch cfg.Driver {
	case "memory":
		log.Warn("Using the in-memory store; data is lost on restart")
		return kv.NewMemoryStore(), nil, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		log.WithField("addr", cfg.Redis.Addr).Info("Connected to redis")
		return kv.NewRedisStore(rdb), rdb.Close, nil
	case "postgres", "sqlite":
		gormDB, err := db.Init(cfg.Driver, cfg.SQL, log)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, nil, err
		}
		return kv.NewGormStore(gormDB), sqlDB.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newEmailSender returns nil when email is disabled. The result is an
// untyped nil interface in that case, which the engine treats as "no email".
func newEmailSender(cfg config.EmailConfig) notification.EmailSender {
	switch strings.ToLower(cfg.Provider) {
	case "resend":
		from := cfg.From
		if cfg.FromName != "" {
			from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
		}
		return notification.NewResendMailer(cfg.APIKey, from)
	case "smtp":
		return notification.NewSMTPMailer(notification.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.From,
			FromName: cfg.FromName,
		})
	default:
		return nil
	}
}
