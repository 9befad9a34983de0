package ehr

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/chartsync/chartsync-api/internal/models"
)

// CharmConfig holds the EHR web application settings.
type CharmConfig struct {
	BaseURL    string
	Username   string
	Password   string
	Practice   string // display name of the practice link on the dashboard
	NavTimeout time.Duration
}

// CharmClient drives the Charm EHR web UI over a remote headless Chrome. It
// implements Submitter. One client owns one logged-in page; Submit is not
// safe for concurrent use.
type CharmClient struct {
	browser *rod.Browser
	page    *rod.Page
	cfg     CharmConfig
	logger  zerolog.Logger
}

func NewCharmClient(controlURL string, cfg CharmConfig, logger zerolog.Logger) (*CharmClient, error) {
	if cfg.NavTimeout == 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	ws, err := launcher.ResolveURL(controlURL)
	if err != nil {
		return nil, errors.Wrap(err, "resolving browser control url")
	}
	browser := rod.New().ControlURL(ws)
	if err := browser.Connect(); err != nil {
		return nil, errors.Wrap(err, "connecting to browser")
	}
	return &CharmClient{
		browser: browser,
		cfg:     cfg,
		logger:  logger.With().Str("component", "charm").Logger(),
	}, nil
}

// Login signs into the EHR and navigates to the patients tab. Must be called
// once before Submit.
func (c *CharmClient) Login(ctx context.Context) error {
	page, err := c.browser.Page(proto.TargetCreateTarget{URL: c.cfg.BaseURL})
	if err != nil {
		return errors.Wrap(err, "opening login page")
	}
	c.page = page.Context(ctx).Timeout(c.cfg.NavTimeout)

	if err := c.typeInto("#login_id", c.cfg.Username); err != nil {
		return err
	}
	if err := c.click("#nextbtn"); err != nil {
		return err
	}
	if err := c.typeInto("#password", c.cfg.Password); err != nil {
		return err
	}
	// The login form reuses the same next button; it goes stale for a moment
	// after the first click.
	next, err := c.page.Element("#nextbtn")
	if err != nil {
		return errors.Wrap(err, "finding password next button")
	}
	if err := next.WaitEnabled(); err != nil {
		return errors.Wrap(err, "waiting for password next button")
	}
	if err := next.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.Wrap(err, "submitting password")
	}

	practice, err := c.page.ElementX(`//a[contains(text(), ` + xpathString(c.cfg.Practice) + `)]`)
	if err != nil {
		return errors.Wrapf(err, "finding practice link %q", c.cfg.Practice)
	}
	if err := practice.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.Wrap(err, "opening practice")
	}
	if err := c.click("#MEMBER_TAB_ID_1"); err != nil {
		return errors.Wrap(err, "opening patients tab")
	}
	c.logger.Info().Str("practice", c.cfg.Practice).Msg("logged into ehr")
	return nil
}

// Submit fills out and saves the add-patient form for one merged patient.
func (c *CharmClient) Submit(ctx context.Context, patient models.MergedPatient) error {
	if c.page == nil {
		return errors.New("charm client is not logged in")
	}
	page := c.page.Context(ctx)

	add, err := page.ElementX(`//div[text() = 'Patient']`)
	if err != nil {
		return errors.Wrap(err, "finding add patient button")
	}
	if err := add.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.Wrap(err, "opening add patient form")
	}

	fields := []struct{ selector, value string }{
		{"#patient_first_name", patient.FirstName},
		{"#patient_last_name", patient.LastName},
		{"#patient_dob", charmDOB(patient.DOB)},
		{"#patient_email", patient.Email},
	}
	for _, f := range fields {
		if err := c.typeInto(f.selector, f.value); err != nil {
			return err
		}
	}

	if patient.Gender != "" {
		if err := c.click("#patient_gender"); err != nil {
			return err
		}
		option, err := page.ElementX(`//option[contains(text(), ` + xpathString(patient.Gender) + `)]`)
		if err != nil {
			return errors.Wrapf(err, "finding gender option %q", patient.Gender)
		}
		if err := option.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return errors.Wrap(err, "selecting gender")
		}
	}

	// The mobile field has an input mask that eats synthetic keystrokes, so
	// the value is set directly.
	if patient.Phone != "" {
		if _, err := page.Eval(`(v) => { document.getElementById('patient_mobile').value = v }`, patient.Phone); err != nil {
			return errors.Wrap(err, "setting mobile number")
		}
	}

	save, err := page.ElementX(`//button[contains(text(), 'Add')]`)
	if err != nil {
		return errors.Wrap(err, "finding save button")
	}
	if err := save.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.Wrap(err, "saving patient")
	}
	c.logger.Info().Str("last_name", patient.LastName).Str("dob", patient.DOB).Msg("patient submitted")
	return nil
}

// Close detaches from the browser; the container teardown is the owner's job.
func (c *CharmClient) Close() error {
	return c.browser.Close()
}

func (c *CharmClient) typeInto(selector, value string) error {
	el, err := c.page.Element(selector)
	if err != nil {
		return errors.Wrapf(err, "finding %s", selector)
	}
	if err := el.WaitVisible(); err != nil {
		return errors.Wrapf(err, "waiting for %s", selector)
	}
	if err := el.Input(value); err != nil {
		return errors.Wrapf(err, "typing into %s", selector)
	}
	return nil
}

func (c *CharmClient) click(selector string) error {
	el, err := c.page.Element(selector)
	if err != nil {
		return errors.Wrapf(err, "finding %s", selector)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.Wrapf(err, "clicking %s", selector)
	}
	return nil
}

// charmDOB converts YYYY-MM-DD into the MMDDYYYY digits the form expects.
func charmDOB(dob string) string {
	parts := strings.SplitN(dob, "-", 3)
	if len(parts) != 3 {
		return dob
	}
	return parts[1] + parts[2] + parts[0]
}

// xpathString quotes a literal for use inside an XPath expression.
func xpathString(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	return `concat('` + strings.ReplaceAll(s, "'", `', "'", '`) + `')`
}
