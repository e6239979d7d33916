package browser

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// LoginForm describes an HTML login form to fill in.
type LoginForm struct {
	URL           string
	Username      string
	Password      string
	UsernameField string
	PasswordField string
	SubmitButton  string
	Headers       map[string]string
	Cookies       []*http.Cookie
	FieldWait     time.Duration // how long to wait for the form to render
	Settle        time.Duration // pause after submitting
}

// LoginResult is the browser state after the form was submitted.
type LoginResult struct {
	FinalURL string
	Cookies  []*http.Cookie
	Duration time.Duration
}

var (
	usernameFallbacks = []string{"username", "user", "email", "login"}
	passwordFallbacks = []string{"password", "pass", "pwd"}
)

// Login opens form.URL, fills and submits the form, and returns the cookies
// the browser holds afterwards.
func (b *Browser) Login(ctx context.Context, form LoginForm) (*LoginResult, error) {
	start := time.Now()

	page, err := b.newPage(form.Headers, form.Cookies)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	page = page.Context(ctx)

	if err := page.Navigate(form.URL); err != nil {
		return nil, fmt.Errorf("failed to open login page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed to load login page: %w", err)
	}

	fieldWait := form.FieldWait
	if fieldWait <= 0 {
		fieldWait = 10 * time.Second
	}

	userEl, err := findField(page, fieldWait, fieldSelectors(form.UsernameField, usernameFallbacks))
	if err != nil {
		return nil, fmt.Errorf("could not find username field: %w", err)
	}
	passEl, err := findField(page, fieldWait, fieldSelectors(form.PasswordField, passwordFallbacks))
	if err != nil {
		return nil, fmt.Errorf("could not find password field: %w", err)
	}

	if err := fill(userEl, form.Username); err != nil {
		return nil, fmt.Errorf("failed to enter username: %w", err)
	}
	if err := fill(passEl, form.Password); err != nil {
		return nil, fmt.Errorf("failed to enter password: %w", err)
	}

	wait := page.WaitNavigation(proto.PageLifecycleEventNameLoad)
	if err := submit(page, form.SubmitButton, passEl); err != nil {
		return nil, fmt.Errorf("failed to submit login form: %w", err)
	}
	wait()

	if form.Settle > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(form.Settle):
		}
	}

	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to read page info: %w", err)
	}

	cookies, err := page.Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get cookies: %w", err)
	}

	return &LoginResult{
		FinalURL: info.URL,
		Cookies:  httpCookies(cookies),
		Duration: time.Since(start),
	}, nil
}

// fieldSelectors lists input selectors, the configured name first.
func fieldSelectors(name string, fallbacks []string) []string {
	selectors := make([]string, 0, len(fallbacks)+1)
	if name != "" {
		selectors = append(selectors, inputByName(name))
	}
	for _, f := range fallbacks {
		if f != name {
			selectors = append(selectors, inputByName(f))
		}
	}
	return selectors
}

func inputByName(name string) string {
	return fmt.Sprintf("input[name=%q]", name)
}

// findField waits for the first selector, then probes the rest without
// waiting.
func findField(page *rod.Page, wait time.Duration, selectors []string) (*rod.Element, error) {
	if len(selectors) == 0 {
		return nil, fmt.Errorf("no selectors")
	}

	if el, err := page.Timeout(wait).Element(selectors[0]); err == nil {
		return el.CancelTimeout(), nil
	}

	for _, sel := range selectors[1:] {
		has, el, err := page.Has(sel)
		if err == nil && has {
			return el, nil
		}
	}
	return nil, fmt.Errorf("none of %v present", selectors)
}

func fill(el *rod.Element, value string) error {
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

// submit clicks the named button, then any submit control, and finally
// presses Enter in the password field.
func submit(page *rod.Page, button string, passEl *rod.Element) error {
	var selectors []string
	if button != "" {
		selectors = append(selectors, fmt.Sprintf("[name=%q]", button))
	}
	selectors = append(selectors, "button[type='submit']", "input[type='submit']")

	for _, sel := range selectors {
		has, el, err := page.Has(sel)
		if err == nil && has {
			return el.Click(proto.InputMouseButtonLeft, 1)
		}
	}
	return passEl.Type(input.Enter)
}
