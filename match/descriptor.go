package match

import (
	"errors"
	"net"

	"github.com/carlmjohnson/versioninfo"
	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/schemes"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/net/idna"

	"github.com/meridian-dds/meridian/core/guid"
)

// DefaultSignatureScheme is the signature scheme used to sign/verify
// EndpointDescriptors, grounded on core/pki's MixDescriptor signature
// scheme selection but simplified to circl's sign.Scheme directly
// rather than reproducing the cert.Certificate wrapper, since this
// module has no multi-signature certificate format to interoperate
// with.
var DefaultSignatureScheme = schemes.ByName("Ed25519")

// ErrNoSignature is returned by Verify when the descriptor carries no
// signature.
var ErrNoSignature = errors.New("match: descriptor has no signature")

// ErrInvalidSignature is returned when a descriptor's signature does
// not verify against its claimed identity key.
var ErrInvalidSignature = errors.New("match: descriptor has an invalid signature")

// EndpointDescriptor is the signed, self-contained description of one
// writer or reader exchanged during matching: the generalization of
// core/pki's MixDescriptor (routing info for a mix) into the QoS and
// locator information spec section 4.6's matching engine needs, minus
// anything discovery-protocol specific (spec section 1 places SPDP/SEDP
// itself out of scope).
type EndpointDescriptor struct {
	GUID          guid.GUID
	Topic         string
	TypeName      string
	QoS           QoS
	Locators      []string // host:port or bare hostname/IP entries
	VendorVersion string
	IdentityKey   []byte `cbor:"identity_key"`
	Signature     []byte `cbor:"signature"`
}

type signedDescriptor EndpointDescriptor

// NewEndpointDescriptor builds an unsigned descriptor for g, stamping
// VendorVersion from the module's own build info (versioninfo), the
// RTPS vendor-id-and-product-version analogue of spec section 6.
func NewEndpointDescriptor(g guid.GUID, topic, typeName string, qos QoS, locators []string, identityKey []byte) *EndpointDescriptor {
	return &EndpointDescriptor{
		GUID:          g,
		Topic:         topic,
		TypeName:      typeName,
		QoS:           qos,
		Locators:      locators,
		VendorVersion: versioninfo.Version,
		IdentityKey:   identityKey,
	}
}

// Sign serializes and signs d with sk under scheme, storing the raw
// signature on d and returning the signed wire bytes.
func Sign(scheme sign.Scheme, sk sign.PrivateKey, d *EndpointDescriptor) ([]byte, error) {
	d.Signature = nil
	payload, err := cbor.Marshal((*signedDescriptor)(d))
	if err != nil {
		return nil, err
	}
	d.Signature = scheme.Sign(sk, payload, nil)
	return cbor.Marshal((*signedDescriptor)(d))
}

// Verify deserializes raw into an EndpointDescriptor and checks its
// signature against pk under scheme.
func Verify(scheme sign.Scheme, pk sign.PublicKey, raw []byte) (*EndpointDescriptor, error) {
	var sd signedDescriptor
	if err := cbor.Unmarshal(raw, &sd); err != nil {
		return nil, err
	}
	d := (*EndpointDescriptor)(&sd)
	if len(d.Signature) == 0 {
		return nil, ErrNoSignature
	}
	sig := d.Signature
	d.Signature = nil
	payload, err := cbor.Marshal((*signedDescriptor)(d))
	d.Signature = sig
	if err != nil {
		return nil, err
	}
	if !scheme.Verify(pk, payload, sig, nil) {
		return nil, ErrInvalidSignature
	}
	return d, nil
}

// ValidateLocators checks every locator is either a well-formed
// host:port pair with a dotted/bracketed IP host, or a syntactically
// valid DNS hostname (validated via idna, mirroring
// core/pki.IsDescriptorWellFormed's non-IP address branch).
func ValidateLocators(locators []string) error {
	if len(locators) == 0 {
		return errors.New("match: descriptor has no locators")
	}
	for _, loc := range locators {
		host, _, err := net.SplitHostPort(loc)
		if err != nil {
			host = loc
		}
		if net.ParseIP(host) != nil {
			continue
		}
		if _, err := idna.Lookup.ToASCII(host); err != nil {
			return err
		}
	}
	return nil
}
