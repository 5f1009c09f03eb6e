package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// Credential use discriminators embedded in the "use" claim so that an access
// value can never be presented for rotation, nor a renewable value for access.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims is the minimal identity envelope carried by a signed credential.
type Claims struct {
	Subject   string
	Use       string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// Codec creates and verifies signed, expiring credentials. Stateless.
type Codec interface {
	Issue(subject, use string, now time.Time, ttl time.Duration) (value string, exp time.Time, err error)
	Verify(value, use string, now time.Time) (Claims, error)
	PublicKeyHex() string
}

type pasetoV4Codec struct {
	issuer    string
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4Codec builds a Codec based on PASETO v4.public.
//
// It uses a single process-wide Ed25519 keypair and enforces issuer, use, and
// expiration rules. Clock skew is applied to the not-before check only;
// expiry is enforced strictly so that Verify can distinguish an expired value
// from a forged one.
func NewPasetoV4Codec(cfg Config) (Codec, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoV4Codec{
		issuer:    cfg.Issuer,
		clockSkew: cfg.ClockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

func (c *pasetoV4Codec) PublicKeyHex() string {
	return c.public.ExportHex()
}

func (c *pasetoV4Codec) Issue(subject, use string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if subject == "" || ttl <= 0 {
		return "", time.Time{}, ErrCredentialInvalid
	}

	exp := now.Add(ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(c.issuer)
	tok.SetSubject(subject)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now) // Credentials are valid immediately.
	tok.SetExpiration(exp)

	_ = tok.Set("use", use)
	// A per-credential nonce keeps two values minted in the same instant distinct.
	_ = tok.Set("rnd", randomHex(16))

	signed := tok.V4Sign(c.secret, nil)
	return signed, exp, nil
}

func (c *pasetoV4Codec) Verify(value, use string, now time.Time) (Claims, error) {
	// Expiry is checked manually below so that the caller can tell an expired
	// credential apart from a malformed or forged one.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(c.issuer))

	parsed, err := p.ParseV4Public(c.public, value, nil)
	if err != nil {
		return Claims{}, ErrCredentialInvalid
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, ErrCredentialInvalid
	}
	gotUse, err := parsed.GetString("use")
	if err != nil || gotUse != use {
		return Claims{}, ErrCredentialInvalid
	}

	// Not-before tolerates minor clock differences between issuer and verifier.
	if nbf, err := parsed.GetNotBefore(); err == nil {
		if nbf.After(now.Add(c.clockSkew)) {
			return Claims{}, ErrCredentialInvalid
		}
	}

	exp, err := parsed.GetExpiration()
	if err != nil {
		return Claims{}, ErrCredentialInvalid
	}
	if !exp.After(now) {
		return Claims{}, ErrCredentialExpired
	}

	iss, _ := parsed.GetIssuer()
	iat, _ := parsed.GetIssuedAt()

	return Claims{
		Subject:   sub,
		Use:       gotUse,
		ExpiresAt: exp,
		IssuedAt:  iat,
		Issuer:    iss,
	}, nil
}

// randomHex returns 2*nBytes hex chars of cryptographically secure randomness.
func randomHex(nBytes int) string {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
