package transport

import (
	"net/http"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/spnego"

	"github.com/agentstation/policytool/pkg/errors"
)

// KerberosConfig selects the credentials used for SPNEGO negotiation.
// Either Keytab with Principal and Realm, or a credential cache.
type KerberosConfig struct {
	Krb5Conf  string
	Keytab    string
	Principal string
	Realm     string
	CCache    string
	// SPN overrides the service principal derived from the request host.
	SPN string
}

// NewKerberosDoer logs in to the KDC and returns a Doer that negotiates
// SPNEGO on every request.
func NewKerberosDoer(cfg KerberosConfig, httpClient *http.Client) (Doer, error) {
	krbConf, err := config.Load(cfg.Krb5Conf)
	if err != nil {
		return nil, errors.NewConfigError("kerberos", "cannot load krb5 config "+cfg.Krb5Conf, err)
	}

	var cl *client.Client
	switch {
	case cfg.Keytab != "":
		if cfg.Principal == "" || cfg.Realm == "" {
			return nil, errors.NewConfigError("kerberos", "principal and realm are required with a keytab", nil)
		}
		kt, err := keytab.Load(cfg.Keytab)
		if err != nil {
			return nil, errors.NewConfigError("kerberos", "cannot load keytab "+cfg.Keytab, err)
		}
		cl = client.NewWithKeytab(cfg.Principal, cfg.Realm, kt, krbConf, client.DisablePAFXFAST(true))
	case cfg.CCache != "":
		cc, err := credentials.LoadCCache(cfg.CCache)
		if err != nil {
			return nil, errors.NewConfigError("kerberos", "cannot load credential cache "+cfg.CCache, err)
		}
		cl, err = client.NewFromCCache(cc, krbConf, client.DisablePAFXFAST(true))
		if err != nil {
			return nil, errors.NewConfigError("kerberos", "invalid credential cache", err)
		}
	default:
		return nil, errors.NewConfigError("kerberos", "either keytab or ccache must be set", nil)
	}

	if err := cl.Login(); err != nil {
		return nil, errors.WrapIO("kerberos login", cfg.Realm, err)
	}
	return spnego.NewClient(cl, httpClient, cfg.SPN), nil
}
