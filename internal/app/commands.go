package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/cropid/internal/locale"
	"github.com/hitoshi/cropid/internal/model"
	"github.com/hitoshi/cropid/internal/verify"
)

// console は対話コマンドの入出力をまとめる。
type console struct {
	in  *bufio.Scanner
	out io.Writer
}

// newConsole はconsoleを生成する。
func newConsole(in io.Reader, out io.Writer) *console {
	return &console{
		in:  bufio.NewScanner(in),
		out: out,
	}
}

// printf は整形して出力する。
func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// prompt はラベルを表示して1行読み取る。入力が尽きた場合はエラーを返す。
func (c *console) prompt(label string) (string, error) {
	fmt.Fprintf(c.out, "%s: ", label)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.in.Text()), nil
}

// describeError はエラーをアクティブな言語の表示文へ変換する。
func describeError(loc *locale.Provider, err error) string {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}

	switch apiErr.Code {
	case model.ErrCodeInvalidCode:
		msg := loc.Translate("invalidCode", nil)
		if apiErr.Remaining >= 0 {
			msg = fmt.Sprintf("%s (%d %s)", msg, apiErr.Remaining, loc.Translate("attemptsRemaining", nil))
		}
		return msg
	case model.ErrCodeTooManyAttempts:
		return loc.Translate("tooManyAttempts", nil)
	case model.ErrCodeExpiredChallenge:
		return loc.Translate("codeExpired", nil)
	case model.ErrCodeTransport:
		return loc.Translate("networkError", nil)
	default:
		return apiErr.Message
	}
}

// runLogin はパスワードログインを実行する。サーバーがMFAチャレンジを
// 要求した場合は対話的な検証フローに入る。
func runLogin(ctx context.Context, d *deps, c *console) error {
	if d.sessions.IsAuthenticated() {
		cur := d.sessions.Current()
		c.printf("Already logged in as %s. Run `cropid logout` first.\n", cur.Email)
		return nil
	}

	email, err := c.prompt(d.locale.Translate("email", nil))
	if err != nil {
		return err
	}
	password, err := c.prompt(d.locale.Translate("password", nil))
	if err != nil {
		return err
	}

	outcome, err := d.gateway.Login(ctx, model.Credentials{
		EmailOrUsername: email,
		Password:        password,
	})
	if err != nil {
		c.printf("%s\n", describeError(d.locale, err))
		return err
	}

	if outcome.Challenge != nil {
		return runVerifyLoop(ctx, d, c, outcome.Challenge)
	}

	d.sessions.Login(*outcome.Session)
	c.printf("%s\n", d.locale.Translate("loginSuccess", nil))
	printSession(d, c, outcome.Session)
	return nil
}

// runVerifyLoop はMFAチャレンジの対話検証を行う。
// `b` でバックアップコード入力に切り替え、`q` で中断する。
func runVerifyLoop(ctx context.Context, d *deps, c *console, challenge *model.Challenge) error {
	flow := verify.NewFlow(challenge, d.gateway, d.sessions, verify.Callbacks{}, verify.Config{})
	defer flow.Close()

	c.printf("%s\n", d.locale.Translate("verifyIdentity", nil))
	c.printf("%s\n", d.locale.Translate("mfaInstructions", map[string]string{
		"method": string(challenge.Method),
	}))

	for {
		switch flow.State() {
		case verify.StateSucceeded:
			c.printf("%s\n", d.locale.Translate("mfaVerificationSuccess", nil))
			printSession(d, c, d.sessions.Current())
			return nil
		case verify.StateExpired:
			c.printf("%s\n", d.locale.Translate("codeExpired", nil))
			return model.NewExpiredChallengeError("", 0)
		case verify.StateAttemptsExhausted:
			c.printf("%s\n", d.locale.Translate("tooManyAttempts", nil))
			return model.NewTooManyAttemptsError("", 0)
		}

		label := d.locale.Translate("enterCode", nil)
		if flow.BackupMode() {
			label = d.locale.Translate("enterBackupCode", nil)
		}
		line, err := c.prompt(fmt.Sprintf("%s [%ds]", label, flow.Remaining()))
		if err != nil {
			flow.Cancel()
			return err
		}

		switch line {
		case "q":
			flow.Cancel()
			c.printf("%s\n", d.locale.Translate("backToLogin", nil))
			return nil
		case "b":
			if flow.ToggleBackupMode() {
				c.printf("%s\n", d.locale.Translate("useBackupCode", nil))
			} else {
				c.printf("%s\n", d.locale.Translate("useCode", nil))
			}
			continue
		case "":
			c.printf("%s\n", d.locale.Translate("codeRequired", nil))
			continue
		}

		c.printf("%s\n", d.locale.Translate("verifying", nil))
		if err := flow.Submit(ctx, line); err != nil {
			c.printf("%s\n", describeError(d.locale, err))
		}
	}
}

// printSession はセッションの要約を表示する。
func printSession(d *deps, c *console, sess *model.Session) {
	if sess == nil {
		return
	}
	c.printf("  user:  %s (%s)\n", sess.Name, sess.Email)
	c.printf("  role:  %s\n", sess.Role)
	if expiry := d.sessions.TokenExpiry(); !expiry.IsZero() {
		c.printf("  token expires: %s\n", expiry.Format(time.RFC3339))
	}
}

// runLogout はローカルのセッションを破棄する。
func runLogout(d *deps, c *console) error {
	d.sessions.Logout()
	c.printf("%s\n", d.locale.Translate("logout", nil))
	return nil
}

// runRegister は新規アカウントの登録を行う。
func runRegister(ctx context.Context, d *deps, c *console) error {
	profile := model.RegistrationProfile{}
	fields := []struct {
		label string
		dst   *string
	}{
		{"Email", &profile.Email},
		{"Phone number", &profile.PhoneNumber},
		{"Password", &profile.Password},
		{"First name", &profile.FirstName},
		{"Last name", &profile.LastName},
		{"Date of birth (YYYY-MM-DD)", &profile.DateOfBirth},
		{"Gender", &profile.Gender},
	}
	for _, f := range fields {
		v, err := c.prompt(f.label)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	account, err := d.gateway.Register(ctx, profile)
	if err != nil {
		c.printf("%s\n", describeError(d.locale, err))
		return err
	}

	c.printf("%s\n", d.locale.Translate("registrationSuccess", nil))
	if account.Message != "" {
		c.printf("  %s\n", account.Message)
	}
	return nil
}

// runWhoami は現在のセッションの要約を表示する。
func runWhoami(d *deps, c *console) error {
	sess := d.sessions.Current()
	if sess == nil {
		c.printf("Not logged in.\n")
		return nil
	}
	printSession(d, c, sess)
	return nil
}

// runRole はアクティブなロールを表示・変更する。
func runRole(d *deps, c *console, args []string) error {
	if len(args) == 0 {
		sess := d.sessions.Current()
		if sess == nil {
			c.printf("Not logged in.\n")
			return nil
		}
		c.printf("%s\n", sess.Role)
		return nil
	}

	if !d.sessions.IsAuthenticated() {
		return model.NewUnauthenticatedError("", 0)
	}
	role := model.Role(args[0])
	if !role.IsValid() {
		return model.NewValidationError("role", "unknown role: "+args[0])
	}
	d.sessions.SetRole(role)
	c.printf("role set to %s\n", role)
	return nil
}

// runDevices は信頼済みデバイスの管理を行う。
func runDevices(ctx context.Context, d *deps, c *console, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		devices, total, err := d.gateway.ListDevices(ctx)
		if err != nil {
			c.printf("%s\n", describeError(d.locale, err))
			return err
		}
		c.printf("%d device(s)\n", total)
		for _, dev := range devices {
			trusted := " "
			if dev.IsTrusted {
				trusted = "*"
			}
			c.printf("  [%s] %s  %s (%s)  last used %s\n",
				trusted, dev.DeviceID, dev.DeviceName, dev.DeviceType,
				dev.LastUsedAt.Format(time.RFC3339))
		}
		return nil

	case "add":
		if len(args) < 1 {
			return model.NewValidationError("device_name", "must not be empty")
		}
		deviceType := model.DeviceDesktop
		if len(args) > 1 {
			deviceType = model.DeviceType(args[1])
		}
		registered, err := d.gateway.RegisterDevice(ctx, model.Device{
			DeviceID:   uuid.New().String(),
			DeviceName: args[0],
			DeviceType: deviceType,
		})
		if err != nil {
			c.printf("%s\n", describeError(d.locale, err))
			return err
		}
		c.printf("registered device %s\n", registered.DeviceID)
		return nil

	case "trust", "untrust":
		if len(args) < 1 {
			return model.NewValidationError("device_id", "must not be empty")
		}
		device, err := d.gateway.SetDeviceTrust(ctx, args[0], sub == "trust")
		if err != nil {
			c.printf("%s\n", describeError(d.locale, err))
			return err
		}
		c.printf("device %s trusted=%t\n", device.DeviceID, device.IsTrusted)
		return nil

	case "remove":
		if len(args) < 1 {
			return model.NewValidationError("device_id", "must not be empty")
		}
		if err := d.gateway.RemoveDevice(ctx, args[0]); err != nil {
			c.printf("%s\n", describeError(d.locale, err))
			return err
		}
		c.printf("device removed\n")
		return nil

	default:
		return model.NewValidationError("subcommand", "unknown devices subcommand: "+sub)
	}
}

// runHistory はログイン履歴を表示する。
func runHistory(ctx context.Context, d *deps, c *console, args []string) error {
	page := 1
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			page = n
		}
	}

	history, err := d.gateway.LoginHistory(ctx, page, 20)
	if err != nil {
		c.printf("%s\n", describeError(d.locale, err))
		return err
	}

	c.printf("page %d of %d record(s)\n", history.Page, history.Total)
	for _, rec := range history.Records {
		location := rec.LocationCity
		if rec.LocationCountry != "" {
			location = location + ", " + rec.LocationCountry
		}
		c.printf("  %s  %-8s %-10s %s  %s\n",
			rec.CreatedAt.Format(time.RFC3339), rec.Status, rec.Method,
			rec.IPAddress, location)
		if rec.FailureReason != "" {
			c.printf("    reason: %s\n", rec.FailureReason)
		}
	}
	return nil
}

// runPasswd はパスワードの変更・リセットを行う。
func runPasswd(ctx context.Context, d *deps, c *console, args []string) error {
	sub := "change"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "change":
		current, err := c.prompt("Current password")
		if err != nil {
			return err
		}
		newPassword, err := c.prompt("New password")
		if err != nil {
			return err
		}
		if err := d.gateway.ChangePassword(ctx, current, newPassword); err != nil {
			c.printf("%s\n", describeError(d.locale, err))
			return err
		}
		c.printf("password changed\n")
		return nil

	case "reset":
		identifier, err := c.prompt(d.locale.Translate("email", nil))
		if err != nil {
			return err
		}
		if err := d.gateway.RequestPasswordReset(ctx, identifier); err != nil {
			c.printf("%s\n", describeError(d.locale, err))
			return err
		}
		c.printf("%s\n", d.locale.Translate("passwordResetRequested", nil))
		return nil

	case "reset-verify":
		token, err := c.prompt("Reset token")
		if err != nil {
			return err
		}
		newPassword, err := c.prompt("New password")
		if err != nil {
			return err
		}
		if err := d.gateway.VerifyPasswordReset(ctx, token, newPassword); err != nil {
			c.printf("%s\n", describeError(d.locale, err))
			return err
		}
		c.printf("password reset\n")
		return nil

	default:
		return model.NewValidationError("subcommand", "unknown passwd subcommand: "+sub)
	}
}

// runMFA はMFAのセットアップ・無効化を行う。
func runMFA(ctx context.Context, d *deps, c *console, args []string) error {
	if len(args) == 0 {
		return model.NewValidationError("subcommand", "expected setup or disable")
	}

	switch args[0] {
	case "setup":
		method := model.MethodTOTP
		if len(args) > 1 {
			method = model.ChallengeMethod(args[1])
		}
		var phone, backupEmail string
		var err error
		if method == model.MethodSMS {
			if phone, err = c.prompt("Phone number"); err != nil {
				return err
			}
		}
		if method == model.MethodEmail {
			if backupEmail, err = c.prompt("Backup email"); err != nil {
				return err
			}
		}

		setup, err := d.gateway.SetupMFA(ctx, method, phone, backupEmail)
		if err != nil {
			c.printf("%s\n", describeError(d.locale, err))
			return err
		}
		if setup.Secret != "" {
			c.printf("secret: %s\n", setup.Secret)
		}
		if setup.QRCode != "" {
			c.printf("QR code: %s\n", setup.QRCode)
		}
		if len(setup.BackupCodes) > 0 {
			c.printf("backup codes (store them somewhere safe):\n")
			for _, code := range setup.BackupCodes {
				c.printf("  %s\n", code)
			}
		}

		code, err := c.prompt(d.locale.Translate("enterCode", nil))
		if err != nil {
			return err
		}
		if err := d.gateway.VerifyMFASetup(ctx, code); err != nil {
			c.printf("%s\n", describeError(d.locale, err))
			return err
		}
		c.printf("MFA enabled\n")
		return nil

	case "disable":
		password, err := c.prompt(d.locale.Translate("password", nil))
		if err != nil {
			return err
		}
		if err := d.gateway.DisableMFA(ctx, password); err != nil {
			c.printf("%s\n", describeError(d.locale, err))
			return err
		}
		c.printf("MFA disabled\n")
		return nil

	default:
		return model.NewValidationError("subcommand", "unknown mfa subcommand: "+args[0])
	}
}

// runPredict は画像から作物を判定する。
// `--url URL` でリモート画像、`--sample` でオフラインの代表例を使用する。
func runPredict(ctx context.Context, d *deps, c *console, args []string) error {
	if len(args) == 0 {
		return model.NewValidationError("image", "expected an image file, --url URL, or --sample")
	}

	var result *model.PredictionResult
	var err error

	switch args[0] {
	case "--url":
		if len(args) < 2 {
			return model.NewValidationError("image_url", "must not be empty")
		}
		result, err = d.predict.PredictImageURL(ctx, args[1])

	case "--sample":
		result = d.sampler.Sample()

	default:
		var file *os.File
		file, err = os.Open(args[0])
		if err != nil {
			return model.NewValidationError("image", err.Error())
		}
		defer file.Close()

		info, statErr := file.Stat()
		if statErr != nil {
			return model.NewValidationError("image", statErr.Error())
		}
		result, err = d.predict.PredictImage(ctx, args[0], file, info.Size())
	}

	if err != nil {
		c.printf("%s\n", describeError(d.locale, err))
		return err
	}

	c.printf("crop:       %s\n", result.Crop)
	c.printf("confidence: %.0f%% (%s)\n", result.Confidence*100, result.ConfidenceLevel)
	c.printf("health:     %s\n", result.Health)
	c.printf("area:       %.0f sqm\n", result.AreaSqm)
	for _, risk := range result.RiskFactors {
		c.printf("risk:       %s\n", risk)
	}
	for _, rec := range result.Recommendations {
		c.printf("advice:     %s\n", rec)
	}
	return nil
}

// runNews は製品のお知らせを表示する。
func runNews(ctx context.Context, d *deps, c *console) error {
	if d.cfg.NewsFeedURL == "" {
		c.printf("No announcement feed configured (set CROPID_NEWS_FEED_URL).\n")
		return nil
	}

	announcements, err := d.news.Fetch(ctx)
	if err != nil {
		c.printf("%s\n", d.locale.Translate("networkError", nil))
		return err
	}

	for _, a := range announcements {
		if a.PublishedAt != nil {
			c.printf("%s  %s\n", a.PublishedAt.Format("2006-01-02"), a.Title)
		} else {
			c.printf("%s\n", a.Title)
		}
		if a.PlainText != "" {
			c.printf("%s\n", indent(a.PlainText, "  "))
		}
		if a.Link != "" {
			c.printf("  %s\n", a.Link)
		}
		c.printf("\n")
	}
	return nil
}

// runLang は表示言語を表示・変更する。
func runLang(d *deps, c *console, args []string) error {
	if len(args) == 0 {
		direction := "ltr"
		if d.locale.IsRightToLeft() {
			direction = "rtl"
		}
		c.printf("%s (%s)\n", d.locale.Get(), direction)
		c.printf("supported: %s\n", strings.Join(locale.SupportedLanguages(), ", "))
		return nil
	}

	if err := d.locale.Set(args[0]); err != nil {
		return err
	}
	c.printf("language set to %s\n", d.locale.Get())
	return nil
}

// indent は各行の先頭にプレフィックスを付ける。
func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
