package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestTelegramLoginWrapsRejectedToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	t.Cleanup(srv.Close)

	_, err := telegramLogin("bad-token", srv.URL+"/bot%s/%s", srv.Client())
	if err == nil {
		t.Fatalf("telegramLogin returned nil error")
	}
	if got := err.Error(); got != "telegram login failed: Unauthorized" {
		t.Fatalf("error = %q", got)
	}
	if strings.Contains(err.Error(), "\x1b[") {
		t.Fatalf("error carries terminal colours: %q", err.Error())
	}

	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusUnauthorized {
		t.Fatalf("error = %#v, want *tgbotapi.Error with code 401", err)
	}
}

func TestTelegramLoginReadsBotName(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getMe") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Promo","username":"promo_admin_bot"}}`)
	}))
	t.Cleanup(srv.Close)

	api, err := telegramLogin("good-token", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("telegramLogin: %v", err)
	}
	if api.Self.UserName != "promo_admin_bot" {
		t.Fatalf("bot username = %q", api.Self.UserName)
	}
}
