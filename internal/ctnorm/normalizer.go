// Package ctnorm turns a decoded CT leaf certificate into the canonical
// ctrecord.Certificate document the sink stores.
package ctnorm

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/certificate-transparency-go/x509"

	"ctsentinel.dev/internal/ctleaf"
	"ctsentinel.dev/internal/ctrecord"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// Normalizer builds ctrecord.Certificate documents for one log.
type Normalizer struct {
	LogURL  string
	LogName string
}

// Normalize parses leaf.Cert and assembles the canonical record for the
// entry at the given log index. Chain certificates that fail to parse are
// silently dropped from ChainSummary; a malformed chain entry never fails
// the whole record, since the leaf certificate is the thing being indexed.
func (n Normalizer) Normalize(leaf ctleaf.Leaf, index int64, now time.Time) (ctrecord.Certificate, error) {
	cert, err := x509.ParseCertificate(leaf.Cert)
	if err != nil {
		return ctrecord.Certificate{}, fmt.Errorf("ctnorm: parse leaf certificate: %w", err)
	}

	sum := sha256.Sum256(leaf.Cert)
	fingerprint := strings.ToUpper(hex.EncodeToString(sum[:]))

	nowStr := now.UTC().Format(timeLayout)

	rec := ctrecord.Certificate{
		Fingerprint: fingerprint,

		LogURL:    n.LogURL,
		CertIndex: index,
		CertLink:  fmt.Sprintf("%sct/v1/get-entries?start=%d&end=%d", n.LogURL, index, index),

		Timestamp: now.UnixMilli(),
		AtTime:    nowStr,
		Seen:      nowStr,

		Type:       "x509",
		UpdateType: entryTypeOf(leaf.Type).UpdateType(),

		Version:            cert.Version,
		SerialNumber:       cert.SerialNumber.String(),
		SignatureAlgorithm: signatureAlgorithmName(cert),
		IssuerCN:           issuerName(cert),
		SubjectCN:          subjectCommonName(cert),

		Validity: ctrecord.Validity{
			NotBefore: cert.NotBefore.UTC().Format(timeLayout),
			NotAfter:  cert.NotAfter.UTC().Format(timeLayout),
			ValidDays: int(cert.NotAfter.Sub(cert.NotBefore).Hours() / 24),
		},
		SubjectPublicKeyInfo: publicKeyInfo(cert),

		AllDomains: allDomains(cert),

		OCSPURL:       firstOrNil(cert.OCSPServer),
		IssuerCertURL: firstOrNil(cert.IssuingCertificateURL),
		CRLURL:        firstOrNil(cert.CRLDistributionPoints),
		KeyUsage:      keyUsageNames(cert.KeyUsage),
		ExtKeyUsage:   extKeyUsageNames(cert.ExtKeyUsage),

		ChainSummary: chainSummary(leaf.Chain),

		Source: ctrecord.Source{URL: n.LogURL, Name: n.LogName},
	}

	return rec, nil
}

func entryTypeOf(t ctleaf.EntryType) ctrecord.EntryType {
	if t == ctleaf.EntryTypePrecertLogEntry {
		return ctrecord.EntryTypePrecert
	}
	return ctrecord.EntryTypeX509
}

func issuerName(cert *x509.Certificate) string {
	if cert.Issuer.CommonName != "" {
		return cert.Issuer.CommonName
	}
	if len(cert.Issuer.Organization) > 0 {
		return cert.Issuer.Organization[0]
	}
	return cert.Issuer.String()
}

func subjectCommonName(cert *x509.Certificate) *string {
	if cert.Subject.CommonName == "" {
		return nil
	}
	cn := cert.Subject.CommonName
	return &cn
}

func allDomains(cert *x509.Certificate) []string {
	domains := make([]string, 0, len(cert.DNSNames)+1)
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		domains = append(domains, name)
	}
	add(cert.Subject.CommonName)
	for _, d := range cert.DNSNames {
		add(d)
	}
	return domains
}

func firstOrNil(vals []string) *string {
	if len(vals) == 0 {
		return nil
	}
	return &vals[0]
}

func publicKeyInfo(cert *x509.Certificate) ctrecord.SubjectPublicKeyInfo {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		exp := pub.E
		return ctrecord.SubjectPublicKeyInfo{
			Algorithm:      "rsa",
			KeySizeBits:    pub.N.BitLen(),
			PublicExponent: &exp,
		}
	case *ecdsa.PublicKey:
		return ctrecord.SubjectPublicKeyInfo{
			Algorithm:   "ec",
			KeySizeBits: pub.Curve.Params().BitSize,
			CurveName:   pub.Curve.Params().Name,
		}
	default:
		return ctrecord.SubjectPublicKeyInfo{Algorithm: "unknown"}
	}
}

var signatureHashNames = map[x509.SignatureAlgorithm]string{
	x509.MD2WithRSA:       "md2",
	x509.MD5WithRSA:       "md5",
	x509.SHA1WithRSA:      "sha1",
	x509.SHA256WithRSA:    "sha256",
	x509.SHA384WithRSA:    "sha384",
	x509.SHA512WithRSA:    "sha512",
	x509.DSAWithSHA1:      "sha1",
	x509.DSAWithSHA256:    "sha256",
	x509.ECDSAWithSHA1:    "sha1",
	x509.ECDSAWithSHA256:  "sha256",
	x509.ECDSAWithSHA384:  "sha384",
	x509.ECDSAWithSHA512:  "sha512",
	x509.SHA256WithRSAPSS: "sha256",
	x509.SHA384WithRSAPSS: "sha384",
	x509.SHA512WithRSAPSS: "sha512",
}

// signatureAlgorithmName builds the `<hash>_<key_algorithm>` form by looking
// up the hash component directly rather than munging String(), whose token
// order already varies by key family ("SHA256-RSA" vs "ECDSA-SHA256").
func signatureAlgorithmName(cert *x509.Certificate) string {
	hash, ok := signatureHashNames[cert.SignatureAlgorithm]
	if !ok {
		hash = strings.ToLower(strings.ReplaceAll(cert.SignatureAlgorithm.String(), "-", "_"))
	}
	switch cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return hash + "_rsa"
	case *ecdsa.PublicKey:
		return hash + "_ec"
	default:
		return hash + "_unknown"
	}
}

func keyUsageNames(ku x509.KeyUsage) []string {
	names := []string{}
	type flag struct {
		bit  x509.KeyUsage
		name string
	}
	flags := []flag{
		{x509.KeyUsageDigitalSignature, "digital_signature"},
		{x509.KeyUsageContentCommitment, "content_commitment"},
		{x509.KeyUsageKeyEncipherment, "key_encipherment"},
		{x509.KeyUsageDataEncipherment, "data_encipherment"},
		{x509.KeyUsageKeyAgreement, "key_agreement"},
		{x509.KeyUsageCertSign, "key_cert_sign"},
		{x509.KeyUsageCRLSign, "crl_sign"},
		{x509.KeyUsageEncipherOnly, "encipher_only"},
		{x509.KeyUsageDecipherOnly, "decipher_only"},
	}
	for _, f := range flags {
		if ku&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return names
}

var extKeyUsageNames_ = map[x509.ExtKeyUsage]string{
	x509.ExtKeyUsageAny:                        "any",
	x509.ExtKeyUsageServerAuth:                 "server_auth",
	x509.ExtKeyUsageClientAuth:                 "client_auth",
	x509.ExtKeyUsageCodeSigning:                "code_signing",
	x509.ExtKeyUsageEmailProtection:            "email_protection",
	x509.ExtKeyUsageTimeStamping:               "time_stamping",
	x509.ExtKeyUsageOCSPSigning:                "ocsp_signing",
	x509.ExtKeyUsageMicrosoftServerGatedCrypto: "microsoft_server_gated_crypto",
	x509.ExtKeyUsageNetscapeServerGatedCrypto:  "netscape_server_gated_crypto",
}

func extKeyUsageNames(ekus []x509.ExtKeyUsage) []string {
	names := []string{}
	for _, eku := range ekus {
		if name, ok := extKeyUsageNames_[eku]; ok {
			names = append(names, name)
		} else {
			names = append(names, "unknown")
		}
	}
	return names
}

func chainSummary(chain [][]byte) []ctrecord.ChainEntry {
	summary := []ctrecord.ChainEntry{}
	for _, der := range chain {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			continue
		}
		cn := cert.Subject.CommonName
		if cn == "" {
			cn = cert.Subject.String()
		}
		summary = append(summary, ctrecord.ChainEntry{
			CN:       cn,
			NotAfter: cert.NotAfter.UTC().Format(timeLayout),
		})
	}
	return summary
}
