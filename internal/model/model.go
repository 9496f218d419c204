package model

import (
	"encoding/json"
	"time"
)

// User mirrors a user account on the DNS server.
type User struct {
	Username                     string `json:"username"`
	DisplayName                  string `json:"displayName"`
	Disabled                     bool   `json:"disabled"`
	PreviousSessionLoggedOn      string `json:"previousSessionLoggedOn"`
	PreviousSessionRemoteAddress string `json:"previousSessionRemoteAddress"`
	RecentSessionLoggedOn        string `json:"recentSessionLoggedOn"`
	RecentSessionRemoteAddress   string `json:"recentSessionRemoteAddress"`
}

// LoginInfo is the payload of the login and session/get endpoints.
type LoginInfo struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Token       string `json:"token"`
}

// APISession is a session or API token listed by the DNS server.
type APISession struct {
	Username              string `json:"username"`
	IsCurrentSession      bool   `json:"isCurrentSession"`
	PartialToken          string `json:"partialToken"`
	Type                  string `json:"type"`
	TokenName             string `json:"tokenName"`
	LastSeen              string `json:"lastSeen"`
	LastSeenRemoteAddress string `json:"lastSeenRemoteAddress"`
	LastSeenUserAgent     string `json:"lastSeenUserAgent"`
}

type Group struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type PermissionEntry struct {
	Username  string `json:"username,omitempty"`
	Name      string `json:"name,omitempty"`
	CanView   bool   `json:"canView"`
	CanModify bool   `json:"canModify"`
	CanDelete bool   `json:"canDelete"`
}

type Permission struct {
	Section          string            `json:"section"`
	UserPermissions  []PermissionEntry `json:"userPermissions"`
	GroupPermissions []PermissionEntry `json:"groupPermissions"`
}

type Zone struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Internal     bool   `json:"internal"`
	DNSSECStatus string `json:"dnssecStatus"`
	SOASerial    uint32 `json:"soaSerial"`
	Expiry       string `json:"expiry"`
	IsExpired    bool   `json:"isExpired"`
	SyncFailed   bool   `json:"syncFailed"`
	LastModified string `json:"lastModified"`
	Disabled     bool   `json:"disabled"`
}

// Record keeps rData opaque; the console only displays it.
type Record struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	TTL      int64           `json:"ttl"`
	RData    json.RawMessage `json:"rData"`
	Disabled bool            `json:"disabled"`
}

// DomainTree is one level of the blocked, allowed or cache hierarchy.
type DomainTree struct {
	Domain  string   `json:"domain"`
	Zones   []string `json:"zones"`
	Records []Record `json:"records"`
}

type DNSApp struct {
	ClassPath                     string `json:"classPath"`
	Description                   string `json:"description"`
	IsAppRecordRequestHandler     bool   `json:"isAppRecordRequestHandler"`
	IsRequestController           bool   `json:"isRequestController"`
	IsAuthoritativeRequestHandler bool   `json:"isAuthoritativeRequestHandler"`
	IsRequestBlockingHandler      bool   `json:"isRequestBlockingHandler"`
	IsQueryLogger                 bool   `json:"isQueryLogger"`
	IsPostProcessor               bool   `json:"isPostProcessor"`
}

type App struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	UpdateVersion string   `json:"updateVersion"`
	UpdateURL     string   `json:"updateUrl"`
	DNSApps       []DNSApp `json:"dnsApps"`
}

type StoreApp struct {
	Name             string `json:"name"`
	Version          string `json:"version"`
	Description      string `json:"description"`
	URL              string `json:"url"`
	Size             string `json:"size"`
	Installed        bool   `json:"installed"`
	InstalledVersion string `json:"installedVersion"`
	UpdateAvailable  bool   `json:"updateAvailable"`
}

// TSIGKey is one entry of the tsigKeys settings field.
type TSIGKey struct {
	KeyName       string `json:"keyName"`
	SharedSecret  string `json:"sharedSecret"`
	AlgorithmName string `json:"algorithmName"`
}

type LogFile struct {
	FileName string `json:"fileName"`
	Size     string `json:"size"`
}

type DHCPScope struct {
	Name             string `json:"name"`
	Enabled          bool   `json:"enabled"`
	StartingAddress  string `json:"startingAddress"`
	EndingAddress    string `json:"endingAddress"`
	SubnetMask       string `json:"subnetMask"`
	NetworkAddress   string `json:"networkAddress"`
	BroadcastAddress string `json:"broadcastAddress"`
}

type DHCPLease struct {
	Scope            string `json:"scope"`
	Type             string `json:"type"`
	HardwareAddress  string `json:"hardwareAddress"`
	ClientIdentifier string `json:"clientIdentifier"`
	Address          string `json:"address"`
	HostName         string `json:"hostName"`
	LeaseObtained    string `json:"leaseObtained"`
	LeaseExpires     string `json:"leaseExpires"`
}

type Stats struct {
	TotalQueries       int64 `json:"totalQueries"`
	TotalNoError       int64 `json:"totalNoError"`
	TotalServerFailure int64 `json:"totalServerFailure"`
	TotalNxDomain      int64 `json:"totalNxDomain"`
	TotalRefused       int64 `json:"totalRefused"`
	TotalAuthoritative int64 `json:"totalAuthoritative"`
	TotalRecursive     int64 `json:"totalRecursive"`
	TotalCached        int64 `json:"totalCached"`
	TotalBlocked       int64 `json:"totalBlocked"`
	TotalDropped       int64 `json:"totalDropped"`
	TotalClients       int64 `json:"totalClients"`
	Zones              int64 `json:"zones"`
	CachedEntries      int64 `json:"cachedEntries"`
	AllowedZones       int64 `json:"allowedZones"`
	BlockedZones       int64 `json:"blockedZones"`
	AllowListZones     int64 `json:"allowListZones"`
	BlockListZones     int64 `json:"blockListZones"`
}

type ClusterNode struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Type     string `json:"type"`
	State    string `json:"state"`
	LastSeen string `json:"lastSeen"`
}

type ClusterState struct {
	ClusterInitialized bool          `json:"clusterInitialized"`
	ClusterDomain      string        `json:"clusterDomain"`
	Nodes              []ClusterNode `json:"clusterNodes"`
}

// Session is a console login session. APIToken is the bearer token used
// against the DNS server on the operator's behalf.
type Session struct {
	ID          string
	CSRFToken   string
	Username    string
	DisplayName string
	Role        string // "admin" or "editor"
	APIToken    string
	VerifiedAt  time.Time
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type AuditEntry struct {
	ID        int64
	Username  string
	Action    string
	Target    string
	Detail    string
	IPAddress string
	CreatedAt time.Time
}
