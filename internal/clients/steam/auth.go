package steam

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/internal/domain"
	"github.com/vadiminshakov/autotrade/internal/steamguard"
)

// steam guard code type of the mobile authenticator.
const deviceCodeType = "3"

// InteractiveLogin performs a full credential login with the account's
// password and mobile authenticator, replacing all Steam cookies.
func (c *Client) InteractiveLogin(ctx context.Context) error {
	for _, d := range append(sessionDomains, c.communityHost()) {
		c.jar.ClearDomain(d)
	}

	if err := c.ensureSessionID(ctx); err != nil {
		return err
	}

	key, err := c.passwordKey(ctx)
	if err != nil {
		return err
	}
	encrypted, err := key.encrypt(c.account.Password)
	if err != nil {
		return err
	}

	var begin beginAuthDTO
	err = c.callAuth(ctx, "BeginAuthSessionViaCredentials", url.Values{
		"persistence":          {"1"},
		"encrypted_password":   {encrypted},
		"account_name":         {c.account.Username},
		"encryption_timestamp": {key.timestamp},
	}, &begin)
	if err != nil {
		return err
	}
	if begin.ClientID == "" {
		return errors.Wrap(domain.ErrLoginFailed, "steam rejected the credentials")
	}

	code, err := steamguard.GenerateCode(c.account.SteamGuard.SharedSecret, c.now())
	if err != nil {
		return err
	}
	steamID := begin.SteamID.String()
	if steamID == "" {
		steamID = c.account.SteamGuard.SteamID
	}
	err = c.callAuth(ctx, "UpdateAuthSessionWithSteamGuardCode", url.Values{
		"client_id": {begin.ClientID.String()},
		"steamid":   {steamID},
		"code_type": {deviceCodeType},
		"code":      {code},
	}, nil)
	if err != nil {
		return err
	}

	var poll pollAuthDTO
	err = c.callAuth(ctx, "PollAuthSessionStatus", url.Values{
		"client_id":  {begin.ClientID.String()},
		"request_id": {begin.RequestID.String()},
	}, &poll)
	if err != nil {
		return err
	}
	if poll.RefreshToken == "" {
		return errors.Wrap(domain.ErrLoginFailed, "steam issued no refresh token")
	}

	if err := c.finalizeLogin(ctx, poll.RefreshToken); err != nil {
		return err
	}

	c.copySessionCookies()
	c.l.Info("steam credentials login completed")
	return nil
}

// ensureSessionID makes sure the community sessionid cookie exists; Steam
// accepts a client generated one when the front page does not set it.
func (c *Client) ensureSessionID(ctx context.Context) error {
	if _, _, err := c.do(ctx, http.MethodGet, c.communityURL, nil, nil); err != nil {
		return errors.Wrap(err, "failed to open community page")
	}
	if _, ok := c.jar.Get("sessionid", c.communityHost()); ok {
		return nil
	}

	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return errors.Wrap(err, "generate sessionid")
	}
	c.jar.Set(domain.Cookie{Name: "sessionid", Value: hex.EncodeToString(buf), Domain: c.communityHost(), Path: "/"})
	return nil
}

type passwordKey struct {
	pub       *rsa.PublicKey
	timestamp string
}

func (k passwordKey) encrypt(password string) (string, error) {
	ct, err := rsa.EncryptPKCS1v15(rand.Reader, k.pub, []byte(password))
	if err != nil {
		return "", errors.Wrap(err, "encrypt password")
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

func (c *Client) passwordKey(ctx context.Context) (passwordKey, error) {
	q := url.Values{"account_name": {c.account.Username}}
	rawURL := c.apiURL + "/IAuthenticationService/GetPasswordRSAPublicKey/v1/?" + q.Encode()

	body, resp, err := c.do(ctx, http.MethodGet, rawURL, nil, nil)
	if err != nil {
		return passwordKey{}, errors.Wrap(err, "failed to get password key")
	}
	if err := checkStatus(resp, "failed to get password key"); err != nil {
		return passwordKey{}, err
	}

	var env struct {
		Response rsaKeyDTO `json:"response"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return passwordKey{}, errors.Wrap(err, "decode password key")
	}

	mod, ok := new(big.Int).SetString(env.Response.Mod, 16)
	if !ok {
		return passwordKey{}, errors.Errorf("bad password key modulus %q", env.Response.Mod)
	}
	exp, ok := new(big.Int).SetString(env.Response.Exp, 16)
	if !ok || !exp.IsInt64() {
		return passwordKey{}, errors.Errorf("bad password key exponent %q", env.Response.Exp)
	}

	return passwordKey{
		pub:       &rsa.PublicKey{N: mod, E: int(exp.Int64())},
		timestamp: env.Response.Timestamp,
	}, nil
}

// callAuth posts form to an IAuthenticationService method and decodes its
// response object into out when out is not nil.
func (c *Client) callAuth(ctx context.Context, method string, form url.Values, out any) error {
	op := "steam auth " + method
	body, resp, err := c.postForm(ctx, c.apiURL+"/IAuthenticationService/"+method+"/v1", form, nil)
	if err != nil {
		return errors.Wrap(err, op)
	}
	if err := checkStatus(resp, op); err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	env := struct {
		Response any `json:"response"`
	}{Response: out}
	if err := json.Unmarshal(body, &env); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

func (c *Client) finalizeLogin(ctx context.Context, refreshToken string) error {
	const op = "failed to finalize login"

	sessionID, err := c.sessionID()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, kv := range [][2]string{
		{"nonce", refreshToken},
		{"sessionid", sessionID},
		{"redir", DefaultCommunityURL + "/login/home/?goto="},
	} {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return errors.Wrap(err, op)
		}
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, op)
	}

	headers := http.Header{}
	headers.Set("Content-Type", w.FormDataContentType())
	headers.Set("Referer", DefaultCommunityURL+"/")
	headers.Set("Origin", DefaultCommunityURL)

	body, resp, err := c.do(ctx, http.MethodPost, c.loginURL+"/jwt/finalizelogin", &buf, headers)
	if err != nil {
		return errors.Wrap(err, op)
	}
	if err := checkStatus(resp, op); err != nil {
		return err
	}

	var fin finalizeDTO
	if err := json.Unmarshal(body, &fin); err != nil {
		return errors.Wrap(err, op)
	}
	if len(fin.TransferInfo) == 0 {
		return errors.Wrap(domain.ErrLoginFailed, "finalize login returned no transfers")
	}

	for _, t := range fin.TransferInfo {
		form := url.Values{"steamID": {fin.SteamID}}
		for k, v := range t.Params {
			form.Set(k, v.String())
		}
		_, resp, err := c.postForm(ctx, t.URL, form, nil)
		if err != nil {
			return errors.Wrapf(err, "session transfer to %s", t.URL)
		}
		if resp.StatusCode/100 != 2 {
			c.l.Warn("session transfer failed", zap.String("url", t.URL), zap.Int("status", resp.StatusCode))
		}
	}
	return nil
}

// copySessionCookies mirrors the login cookies between the community and
// store domains, both are needed for the marketplace credential payload.
func (c *Client) copySessionCookies() {
	community := c.communityHost()
	for _, name := range []string{"steamLoginSecure", "sessionid", "steamRefresh_steam", "steamCountry"} {
		value, ok := c.jar.Get(name, community)
		if !ok {
			value, ok = c.jar.Get(name, storeDomain)
		}
		if !ok {
			continue
		}
		if _, exists := c.jar.Get(name, community); !exists {
			c.jar.Set(domain.Cookie{Name: name, Value: value, Domain: community, Path: "/"})
		}
		if _, exists := c.jar.Get(name, storeDomain); !exists {
			c.jar.Set(domain.Cookie{Name: name, Value: value, Domain: storeDomain, Path: "/"})
		}
	}
}
