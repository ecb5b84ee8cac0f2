package remnawave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	promoname "github.com/Asort97/promoBot/clients/promoName"
)

// fakePanel is an in-memory stand-in for the panel's user endpoints.
type fakePanel struct {
	t *testing.T

	mu          sync.Mutex
	users       []map[string]any
	createCalls []map[string]any
	// acceptCreate decides per create call (1-based) whether the payload is accepted.
	acceptCreate func(call int, body map[string]any) int
	listStatus   int
	deleteStatus int
	headers      http.Header
}

func newFakePanel(t *testing.T) (*fakePanel, *httptest.Server) {
	t.Helper()
	p := &fakePanel{t: t}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return p, srv
}

func (p *fakePanel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.headers = r.Header.Clone()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/users":
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			p.t.Errorf("decode create body: %v", err)
		}
		p.createCalls = append(p.createCalls, body)
		status := http.StatusCreated
		if p.acceptCreate != nil {
			status = p.acceptCreate(len(p.createCalls), body)
		}
		if status >= 400 {
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"message":"validation failed","statusCode":%d}`, status)
			return
		}
		id := fmt.Sprintf("00000000-0000-0000-0000-%012d", len(p.users)+1)
		user := map[string]any{
			"uuid":              id,
			"shortUuid":         "short" + strconv.Itoa(len(p.users)+1),
			"username":          body["username"],
			"status":            "ACTIVE",
			"usedTrafficBytes":  0,
			"trafficLimitBytes": body["trafficLimitBytes"],
		}
		p.users = append(p.users, user)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"response": user})

	case r.Method == http.MethodGet && r.URL.Path == "/api/users":
		if p.listStatus != 0 {
			w.WriteHeader(p.listStatus)
			return
		}
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		size, _ := strconv.Atoi(r.URL.Query().Get("size"))
		end := start + size
		if start > len(p.users) {
			start = len(p.users)
		}
		if end > len(p.users) {
			end = len(p.users)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{"users": p.users[start:end], "total": len(p.users)},
		})

	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/users/"):
		if p.deleteStatus != 0 {
			w.WriteHeader(p.deleteStatus)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/users/")
		for i, u := range p.users {
			if u["uuid"] == id {
				p.users = append(p.users[:i], p.users[i+1:]...)
				_ = json.NewEncoder(w).Encode(map[string]any{"response": map[string]any{"isDeleted": true}})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"User not found"}`)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(srv *httptest.Server, opts Options) *Client {
	opts.BaseURL = srv.URL
	if opts.Token == "" {
		opts.Token = "panel-token"
	}
	return New(opts)
}

func TestCreateAccountFallsBackToThirdShape(t *testing.T) {
	t.Parallel()

	panel, srv := newFakePanel(t)
	panel.acceptCreate = func(call int, _ map[string]any) int {
		if call <= 2 {
			return http.StatusBadRequest
		}
		return http.StatusCreated
	}
	client := newTestClient(srv, Options{})

	acc, err := client.CreateAccount(context.Background(), "summer_sale", GBToBytes(30))
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if len(panel.createCalls) != 3 {
		t.Fatalf("create calls = %d, want 3", len(panel.createCalls))
	}
	if len(panel.users) != 1 {
		t.Fatalf("accounts on panel = %d, want 1", len(panel.users))
	}

	third := panel.createCalls[2]
	if _, ok := third["traffic_limit_bytes"]; !ok {
		t.Fatalf("third payload = %v, want snake_case quota field", third)
	}
	if _, ok := panel.createCalls[0]["trafficLimitStrategy"]; !ok {
		t.Fatalf("first payload = %v, want full shape", panel.createCalls[0])
	}

	if acc.Tag != "summer_sale" {
		t.Fatalf("acc.Tag = %q, want summer_sale", acc.Tag)
	}
	if tag, ok := promoname.Decode(promoname.DefaultPrefix, acc.Username); !ok || tag != "summer_sale" {
		t.Fatalf("username %q does not decode to the tag", acc.Username)
	}
	if acc.TrafficLimitBytes != GBToBytes(30) {
		t.Fatalf("acc.TrafficLimitBytes = %d, want %d", acc.TrafficLimitBytes, GBToBytes(30))
	}
}

func TestCreateAccountUsesSameUsernameForEveryShape(t *testing.T) {
	t.Parallel()

	panel, srv := newFakePanel(t)
	panel.acceptCreate = func(call int, _ map[string]any) int {
		if call < 4 {
			return http.StatusUnprocessableEntity
		}
		return http.StatusCreated
	}
	client := newTestClient(srv, Options{})

	if _, err := client.CreateAccount(context.Background(), "tag", GBToBytes(15)); err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	first := panel.createCalls[0]["username"]
	for i, call := range panel.createCalls {
		if call["username"] != first {
			t.Fatalf("call %d username = %v, want %v", i+1, call["username"], first)
		}
	}
}

func TestCreateAccountAllShapesRejected(t *testing.T) {
	t.Parallel()

	panel, srv := newFakePanel(t)
	panel.acceptCreate = func(int, map[string]any) int { return http.StatusBadRequest }
	client := newTestClient(srv, Options{})

	_, err := client.CreateAccount(context.Background(), "tag", GBToBytes(15))
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("error = %v, want ErrRejected", err)
	}
	if len(panel.createCalls) != len(createLadder) {
		t.Fatalf("create calls = %d, want %d", len(panel.createCalls), len(createLadder))
	}
	if len(panel.users) != 0 {
		t.Fatalf("accounts on panel = %d, want 0", len(panel.users))
	}
}

func TestCreateAccountStopsOnNonValidationError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   error
	}{
		{status: http.StatusUnauthorized, want: ErrUnauthorized},
		{status: http.StatusForbidden, want: ErrUnauthorized},
		{status: http.StatusBadGateway, want: ErrTransient},
		{status: http.StatusTooManyRequests, want: ErrTransient},
	}

	for _, tc := range cases {
		t.Run(strconv.Itoa(tc.status), func(t *testing.T) {
			t.Parallel()

			panel, srv := newFakePanel(t)
			panel.acceptCreate = func(int, map[string]any) int { return tc.status }
			client := newTestClient(srv, Options{})

			_, err := client.CreateAccount(context.Background(), "tag", GBToBytes(15))
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
			if len(panel.createCalls) != 1 {
				t.Fatalf("create calls = %d, want 1", len(panel.createCalls))
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Status != tc.status {
				t.Fatalf("error = %#v, want *APIError with status %d", err, tc.status)
			}
		})
	}
}

func TestCreateAccountRejectsProxyPage(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>Caddy login</html>")
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(srv, Options{})

	acc, err := client.CreateAccount(context.Background(), "tag", GBToBytes(15))
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("error = %v, want ErrTransient", err)
	}
	if acc.Username != "" {
		t.Fatalf("account = %+v, want none", acc)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("create calls = %d, want 1", got)
	}
}

func TestCreateAccountToleratesUnexpectedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"response":["unexpected"]}`)
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(srv, Options{})

	acc, err := client.CreateAccount(context.Background(), "tag", GBToBytes(15))
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if acc.Tag != "tag" || acc.Username == "" {
		t.Fatalf("account = %+v", acc)
	}
}

func TestCreateAccountRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	panel, srv := newFakePanel(t)
	client := newTestClient(srv, Options{})

	if _, err := client.CreateAccount(context.Background(), "bad tag!", GBToBytes(15)); err == nil {
		t.Fatalf("CreateAccount with invalid tag returned nil error")
	}
	if _, err := client.CreateAccount(context.Background(), "tag", 0); err == nil {
		t.Fatalf("CreateAccount with zero limit returned nil error")
	}
	if len(panel.createCalls) != 0 {
		t.Fatalf("create calls = %d, want 0", len(panel.createCalls))
	}
}

func TestFullShapeCarriesInbounds(t *testing.T) {
	t.Parallel()

	panel, srv := newFakePanel(t)
	client := newTestClient(srv, Options{InboundIDs: []string{"1", "7c9a3a4e-1d2b-4c5e-9f00-0a1b2c3d4e5f", "junk"}})

	if _, err := client.CreateAccount(context.Background(), "tag", GBToBytes(50)); err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	body := panel.createCalls[0]
	uuids, _ := body["activeUserInbounds"].([]any)
	numbers, _ := body["activeInbounds"].([]any)
	if len(uuids) != 1 || uuids[0] != "7c9a3a4e-1d2b-4c5e-9f00-0a1b2c3d4e5f" {
		t.Fatalf("activeUserInbounds = %v", body["activeUserInbounds"])
	}
	if len(numbers) != 1 || numbers[0] != float64(1) {
		t.Fatalf("activeInbounds = %v", body["activeInbounds"])
	}
	if body["expireAt"] != "2099-12-31T23:59:59Z" {
		t.Fatalf("expireAt = %v", body["expireAt"])
	}
}

func TestRequestHeaders(t *testing.T) {
	t.Parallel()

	panel, srv := newFakePanel(t)
	client := newTestClient(srv, Options{Token: "secret", CaddyToken: "caddy"})

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	if got := panel.headers.Get("Authorization"); got != "Bearer secret" {
		t.Fatalf("Authorization = %q", got)
	}
	if got := panel.headers.Get("X-Api-Key"); got != "caddy" {
		t.Fatalf("X-Api-Key = %q", got)
	}
	if got := panel.headers.Get("X-Forwarded-Proto"); got != "https" {
		t.Fatalf("X-Forwarded-Proto = %q, want https for a plain http panel", got)
	}
}

func TestListAccountsPaginatesAndSkipsForeignUsers(t *testing.T) {
	t.Parallel()

	panel, srv := newFakePanel(t)
	for i := 0; i < 7; i++ {
		panel.users = append(panel.users, map[string]any{
			"uuid":              fmt.Sprintf("u-%d", i),
			"username":          promoname.Encode(promoname.DefaultPrefix, "black_friday", fmt.Sprintf("abc%05d", i)),
			"status":            "ACTIVE",
			"usedTrafficBytes":  strconv.Itoa(i * 10),
			"trafficLimitBytes": GBToBytes(15),
		})
	}
	panel.users = append(panel.users,
		map[string]any{"uuid": "foreign-1", "username": "john_doe"},
		map[string]any{"uuid": "foreign-2", "username": "promo-broken"},
	)
	client := newTestClient(srv, Options{PageSize: 3})

	accounts, err := client.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts returned error: %v", err)
	}
	if len(accounts) != 7 {
		t.Fatalf("len(accounts) = %d, want 7", len(accounts))
	}
	for i, acc := range accounts {
		if acc.Tag != "black_friday" {
			t.Fatalf("accounts[%d].Tag = %q", i, acc.Tag)
		}
		if acc.UsedTrafficBytes != int64(i*10) {
			t.Fatalf("accounts[%d].UsedTrafficBytes = %d, want %d", i, acc.UsedTrafficBytes, i*10)
		}
	}
}

func TestAccountsStopsWhenPanelIgnoresPagination(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `[{"uuid":"a","username":"promo-aaaa1111-x"},{"uuid":"b","username":"promo-bbbb2222-x"}]`)
	}))
	defer srv.Close()
	client := newTestClient(srv, Options{PageSize: 2})

	accounts, err := client.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts returned error: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("len(accounts) = %d, want 2", len(accounts))
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("list calls = %d, want 2", got)
	}
}

func TestListAccountsSurfacesUpstreamError(t *testing.T) {
	t.Parallel()

	panel, srv := newFakePanel(t)
	panel.listStatus = http.StatusUnauthorized
	client := newTestClient(srv, Options{})

	if _, err := client.ListAccounts(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
}

func TestDeleteAccountIsIdempotent(t *testing.T) {
	t.Parallel()

	panel, srv := newFakePanel(t)
	panel.users = append(panel.users, map[string]any{"uuid": "u-1", "username": "promo-abcd1234-tag"})
	client := newTestClient(srv, Options{})
	acc := Account{UUID: "u-1", Username: "promo-abcd1234-tag"}

	if err := client.DeleteAccount(context.Background(), acc); err != nil {
		t.Fatalf("first DeleteAccount returned error: %v", err)
	}
	if err := client.DeleteAccount(context.Background(), acc); err != nil {
		t.Fatalf("second DeleteAccount returned error: %v", err)
	}
	if len(panel.users) != 0 {
		t.Fatalf("accounts left = %d, want 0", len(panel.users))
	}
}

func TestDeleteAccountSurfacesOtherErrors(t *testing.T) {
	t.Parallel()

	panel, srv := newFakePanel(t)
	panel.deleteStatus = http.StatusInternalServerError
	client := newTestClient(srv, Options{})

	err := client.DeleteAccount(context.Background(), Account{UUID: "u-1"})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("error = %v, want ErrTransient", err)
	}
	if err := client.DeleteAccount(context.Background(), Account{Username: "no-uuid"}); err == nil {
		t.Fatalf("DeleteAccount without uuid returned nil")
	}
}

func TestSubscriptionLinkFallbackOrder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/with-snake":
			fmt.Fprint(w, `{"response":{"uuid":"with-snake","subscription_url":"https://sub.example/snake"}}`)
		case "/api/users/no-link":
			fmt.Fprint(w, `{"response":{"uuid":"no-link"}}`)
		case "/api/users/by-short-uuid/short-ok":
			fmt.Fprint(w, `{"response":{"subscriptionUrl":"https://sub.example/short"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	client := newTestClient(srv, Options{})
	ctx := context.Background()

	cases := []struct {
		name   string
		acc    Account
		want   string
		wantOK bool
	}{
		{name: "own field", acc: Account{SubscriptionURL: "https://sub.example/own", UUID: "x"}, want: "https://sub.example/own", wantOK: true},
		{name: "by uuid snake field", acc: Account{UUID: "with-snake"}, want: "https://sub.example/snake", wantOK: true},
		{name: "by short uuid", acc: Account{UUID: "no-link", ShortUUID: "short-ok"}, want: "https://sub.example/short", wantOK: true},
		{name: "constructed", acc: Account{UUID: "missing", ShortUUID: "abc"}, want: srv.URL + "/api/sub/abc", wantOK: true},
		{name: "nothing", acc: Account{UUID: "missing"}, wantOK: false},
	}
	for _, tc := range cases {
		got, ok := client.SubscriptionLink(ctx, tc.acc)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("%s: SubscriptionLink = %q, %v; want %q, %v", tc.name, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestAccountUsed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		acc  Account
		want bool
	}{
		{acc: Account{Status: "ACTIVE"}, want: false},
		{acc: Account{}, want: false},
		{acc: Account{Status: "ACTIVE", UsedTrafficBytes: 1}, want: true},
		{acc: Account{Status: "DISABLED"}, want: true},
		{acc: Account{Status: "LIMITED"}, want: true},
		{acc: Account{Status: "EXPIRED"}, want: true},
	}
	for _, tc := range cases {
		if got := tc.acc.Used(); got != tc.want {
			t.Fatalf("%+v Used() = %v, want %v", tc.acc, got, tc.want)
		}
	}
}

func TestUserDTONestedTrafficAndStringCounts(t *testing.T) {
	t.Parallel()

	var dto userDTO
	raw := `{"username":"promo-abcd1234-tag","status":"disabled","trafficLimitBytes":"16106127360","userTraffic":{"usedTrafficBytes":2048}}`
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	acc := dto.account(promoname.DefaultPrefix)
	if acc.TrafficLimitBytes != GBToBytes(15) {
		t.Fatalf("TrafficLimitBytes = %d", acc.TrafficLimitBytes)
	}
	if acc.UsedTrafficBytes != 2048 {
		t.Fatalf("UsedTrafficBytes = %d", acc.UsedTrafficBytes)
	}
	if acc.Status != "DISABLED" || acc.Tag != "tag" {
		t.Fatalf("acc = %+v", acc)
	}
}

func TestTrafficConversion(t *testing.T) {
	t.Parallel()

	if got := GBToBytes(30); got != 30*1024*1024*1024 {
		t.Fatalf("GBToBytes(30) = %d", got)
	}
	for _, gb := range TrafficLimitsGB {
		if back := BytesToGB(GBToBytes(gb)); back != int64(gb) {
			t.Fatalf("BytesToGB(GBToBytes(%d)) = %d", gb, back)
		}
		if !IsTrafficLimit(gb) {
			t.Fatalf("IsTrafficLimit(%d) = false", gb)
		}
	}
	if IsTrafficLimit(20) {
		t.Fatalf("IsTrafficLimit(20) = true")
	}
	if got := FormatBytes(GBToBytes(30)); got != "30.00 GB" {
		t.Fatalf("FormatBytes = %q", got)
	}
	if got := FormatBytes(512); got != "512 B" {
		t.Fatalf("FormatBytes(512) = %q", got)
	}
}
