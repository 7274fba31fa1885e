package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/internal/domain"
	"github.com/vadiminshakov/autotrade/internal/steamguard"
)

// tradeOfferStateActive is the web API state of an offer that can be accepted.
const tradeOfferStateActive = 2

var partnerRe = regexp.MustCompile(`var g_ulTradePartnerSteamID = '(\d+)';`)

// AcceptTradeOffer accepts the incoming offer and, when Steam asks for it,
// confirms it on the mobile authenticator.
func (c *Client) AcceptTradeOffer(ctx context.Context, tradeOfferID string) error {
	if err := c.checkOfferActive(ctx, tradeOfferID); err != nil {
		return err
	}

	partner, err := c.tradePartner(ctx, tradeOfferID)
	if err != nil {
		return err
	}
	sessionID, err := c.sessionID()
	if err != nil {
		return err
	}

	offerURL := c.offerURL(tradeOfferID)
	headers := http.Header{}
	headers.Set("Referer", offerURL)

	body, resp, err := c.postForm(ctx, offerURL+"accept", url.Values{
		"sessionid":    {sessionID},
		"tradeofferid": {tradeOfferID},
		"serverid":     {"1"},
		"partner":      {partner},
		"captcha":      {""},
	}, headers)
	if err != nil {
		return errors.Wrap(err, "failed to accept trade offer")
	}
	if err := checkStatus(resp, "failed to accept trade offer"); err != nil {
		return err
	}

	var accepted acceptDTO
	if err := json.Unmarshal(body, &accepted); err != nil {
		return errors.Wrap(err, "decode accept response")
	}
	if accepted.StrError != "" {
		return errors.WithStack(&domain.APIError{Op: "failed to accept trade offer", Code: "strError", Message: accepted.StrError})
	}

	if accepted.NeedsMobileConfirmation {
		c.l.Debug("trade offer needs mobile confirmation", zap.String("trade_offer_id", tradeOfferID))
		return c.ConfirmTransaction(ctx, tradeOfferID)
	}
	return nil
}

// ConfirmTransaction allows the pending mobile confirmation created for the
// trade offer. It does nothing when trade confirmations are disabled for the
// account.
func (c *Client) ConfirmTransaction(ctx context.Context, tradeOfferID string) error {
	if !c.account.TradeConfirmations {
		return nil
	}

	confirmations, err := c.confirmations(ctx)
	if err != nil {
		return err
	}

	var target *confirmationDTO
	for i := range confirmations {
		if confirmations[i].CreatorID.String() == tradeOfferID {
			target = &confirmations[i]
			break
		}
	}
	if target == nil {
		return errors.Errorf("no pending confirmation for trade offer %s", tradeOfferID)
	}

	params, err := c.confirmationParams("allow")
	if err != nil {
		return err
	}
	params.Set("op", "allow")
	params.Set("cid", target.ID.String())
	params.Set("ck", target.Nonce.String())

	var result confirmationOpDTO
	if err := c.getMobileConf(ctx, "ajaxop", params, &result); err != nil {
		return err
	}
	if !result.Success {
		return errors.WithStack(&domain.APIError{Op: "failed to confirm trade offer", Code: "false", Message: result.Message})
	}
	return nil
}

func (c *Client) confirmations(ctx context.Context) ([]confirmationDTO, error) {
	params, err := c.confirmationParams("conf")
	if err != nil {
		return nil, err
	}

	var list confirmationListDTO
	if err := c.getMobileConf(ctx, "getlist", params, &list); err != nil {
		return nil, err
	}
	if list.NeedAuth {
		return nil, errors.Wrap(domain.ErrNotLoggedIn, "failed to get confirmations")
	}
	if !list.Success {
		return nil, errors.WithStack(&domain.APIError{Op: "failed to get confirmations", Code: "false", Message: list.Message})
	}
	return list.Conf, nil
}

func (c *Client) confirmationParams(tag string) (url.Values, error) {
	now := c.now()
	key, err := steamguard.ConfirmationKey(c.account.SteamGuard.IdentitySecret, now, tag)
	if err != nil {
		return nil, err
	}
	return url.Values{
		"p":   {steamguard.DeviceID(c.account.SteamGuard.SteamID)},
		"a":   {c.account.SteamGuard.SteamID},
		"k":   {key},
		"t":   {strconv.FormatInt(now.Unix(), 10)},
		"m":   {"react"},
		"tag": {tag},
	}, nil
}

func (c *Client) getMobileConf(ctx context.Context, method string, params url.Values, out any) error {
	op := "mobileconf " + method

	headers := http.Header{}
	headers.Set("X-Requested-With", "com.valvesoftware.android.steam.community")

	body, resp, err := c.do(ctx, http.MethodGet, c.communityURL+"/mobileconf/"+method+"?"+params.Encode(), nil, headers)
	if err != nil {
		return errors.Wrap(err, op)
	}
	if err := checkStatus(resp, op); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

// checkOfferActive rejects offers that are no longer active. Without a web
// API key the check is skipped.
func (c *Client) checkOfferActive(ctx context.Context, tradeOfferID string) error {
	if c.account.APIKey == "" {
		return nil
	}

	q := url.Values{
		"key":          {c.account.APIKey},
		"tradeofferid": {tradeOfferID},
		"language":     {"english"},
	}
	body, resp, err := c.do(ctx, http.MethodGet, c.apiURL+"/IEconService/GetTradeOffer/v1/?"+q.Encode(), nil, nil)
	if err != nil {
		return errors.Wrap(err, "failed to get trade offer")
	}
	if err := checkStatus(resp, "failed to get trade offer"); err != nil {
		return err
	}

	var offer tradeOfferDTO
	if err := json.Unmarshal(body, &offer); err != nil {
		return errors.Wrap(err, "decode trade offer")
	}
	if state := offer.Response.Offer.TradeOfferState; state != tradeOfferStateActive {
		return errors.Errorf("trade offer %s is not active (state %d)", tradeOfferID, state)
	}
	return nil
}

func (c *Client) tradePartner(ctx context.Context, tradeOfferID string) (string, error) {
	body, resp, err := c.do(ctx, http.MethodGet, c.offerURL(tradeOfferID), nil, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to open trade offer")
	}
	if err := checkStatus(resp, "failed to open trade offer"); err != nil {
		return "", err
	}

	m := partnerRe.FindSubmatch(body)
	if m == nil {
		return "", errors.Errorf("trade partner of offer %s not found", tradeOfferID)
	}
	return string(m[1]), nil
}

func (c *Client) offerURL(tradeOfferID string) string {
	return fmt.Sprintf("%s/tradeoffer/%s/", c.communityURL, url.PathEscape(tradeOfferID))
}
