package auth

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"isotope/internal/config"
)

var ErrNoMappedGroup = errors.New("auth: user is not in a mapped group")

// LDAPUser is a directory account that passed the password bind.
type LDAPUser struct {
	Username    string
	DisplayName string
	Email       string
	Groups      []string
}

type LDAPClient struct {
	cfg  config.LDAPConfig
	dial func() (ldapConn, func(), error)
}

// ldapConn is the part of *ldap.Conn used here.
type ldapConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

func NewLDAPClient(cfg config.LDAPConfig) *LDAPClient {
	lc := &LDAPClient{cfg: cfg}
	lc.dial = lc.connect
	return lc
}

// Authenticate finds the user with the service account, then binds as the
// user to check the password.
func (lc *LDAPClient) Authenticate(username, password string) (*LDAPUser, error) {
	if username == "" || password == "" {
		return nil, errors.New("ldap: empty credentials")
	}
	conn, closeConn, err := lc.dial()
	if err != nil {
		return nil, fmt.Errorf("ldap connect: %w", err)
	}
	defer closeConn()

	if err := conn.Bind(lc.cfg.BindDN, lc.cfg.BindPassword); err != nil {
		return nil, fmt.Errorf("ldap service bind: %w", err)
	}

	result, err := conn.Search(ldap.NewSearchRequest(
		lc.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 30, false,
		fmt.Sprintf(lc.cfg.UserFilter, ldap.EscapeFilter(username)),
		[]string{"dn", lc.cfg.UsernameAttr, lc.cfg.EmailAttr, "displayName", "memberOf"},
		nil,
	))
	if err != nil {
		return nil, fmt.Errorf("ldap search: %w", err)
	}
	if len(result.Entries) != 1 {
		return nil, fmt.Errorf("ldap: user not found or ambiguous: %d results", len(result.Entries))
	}
	entry := result.Entries[0]

	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, fmt.Errorf("ldap user bind: %w", err)
	}

	user := &LDAPUser{
		Username:    entry.GetAttributeValue(lc.cfg.UsernameAttr),
		DisplayName: entry.GetAttributeValue("displayName"),
		Email:       entry.GetAttributeValue(lc.cfg.EmailAttr),
		Groups:      entry.GetAttributeValues("memberOf"),
	}
	if user.Username == "" {
		user.Username = username
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}
	if len(user.Groups) == 0 {
		user.Groups = lc.searchGroups(conn, entry.DN, user.Username)
	}
	return user, nil
}

// searchGroups covers directories without memberOf. In the filter, %s is
// the user DN and %u the login name.
func (lc *LDAPClient) searchGroups(conn ldapConn, userDN, login string) []string {
	tmpl := lc.cfg.GroupFilter
	if tmpl == "" {
		tmpl = "(|(member=%s)(uniqueMember=%s))"
	}
	filter := strings.ReplaceAll(tmpl, "%s", ldap.EscapeFilter(userDN))
	filter = strings.ReplaceAll(filter, "%u", ldap.EscapeFilter(login))

	res, err := conn.Search(ldap.NewSearchRequest(
		lc.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter, []string{"dn"}, nil,
	))
	if err != nil {
		return nil
	}
	groups := make([]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		groups = append(groups, e.DN)
	}
	return groups
}

// ResolveRole maps groups to a console role; admin beats editor.
func (lc *LDAPClient) ResolveRole(groups []string) (string, error) {
	for _, role := range []string{RoleAdmin, RoleEditor} {
		want, ok := lc.cfg.GroupMapping[role]
		if !ok {
			continue
		}
		for _, g := range groups {
			if strings.EqualFold(g, want) {
				return role, nil
			}
		}
	}
	return "", ErrNoMappedGroup
}

func (lc *LDAPClient) connect() (ldapConn, func(), error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: lc.cfg.SkipVerify}

	var opts []ldap.DialOpt
	if strings.HasPrefix(lc.cfg.URL, "ldaps://") {
		opts = append(opts, ldap.DialWithTLSConfig(tlsCfg))
	}
	conn, err := ldap.DialURL(lc.cfg.URL, opts...)
	if err != nil {
		return nil, nil, err
	}
	closeConn := func() { conn.Close() }

	if lc.cfg.StartTLS && !strings.HasPrefix(lc.cfg.URL, "ldaps://") {
		if err := conn.StartTLS(tlsCfg); err != nil {
			closeConn()
			return nil, nil, fmt.Errorf("starttls: %w", err)
		}
	}
	return conn, closeConn, nil
}
