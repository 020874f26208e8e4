// Package sigv4 produces AWS Signature Version 4 authentication material
// for an S3-compatible object store.
//
// Two request styles are supported:
//
//   - Header-based: an Authorization header for an authenticated PUT whose
//     body hash is known (SignHeaderAuth).
//   - Query-based: presigned URLs a browser can use directly without
//     credentials (PresignPut, PresignGet).
//
// The canonical request layout, HMAC chain, and parameter ordering follow
// the SigV4 specification exactly; signatures interoperate with any
// S3-compatible backend.
//
// # Usage
//
//	signer := &sigv4.Signer{
//		Endpoint:    "https://s3.percolationlabs.ai",
//		Region:      "us-east-1",
//		Credentials: sigv4.Credentials{AccessKeyID: ak, SecretAccessKey: sk},
//	}
//	obj, err := signer.PresignPut("tenant-bucket", key, time.Hour)
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	algorithm       = "AWS4-HMAC-SHA256"
	service         = "s3"
	unsignedPayload = "UNSIGNED-PAYLOAD"

	// defaultHost is used when the configured endpoint cannot be parsed.
	// Kept for parity with existing deployments, but a misconfigured
	// endpoint will silently sign for this host; prefer fixing the config.
	defaultHost = "s3.percolationlabs.ai"

	// amzDateLayout is ISO-8601 basic format, e.g. 20250105T120000Z.
	amzDateLayout = "20060102T150405Z"
)

// Environment variables consulted when no explicit credentials are set.
const (
	EnvAccessKey = "P8_S3_ACCESS_KEY"
	EnvSecretKey = "P8_S3_SECRET_KEY"
)

// ErrMissingCredentials is returned when neither explicit nor
// environment-configured access/secret keys are available.
var ErrMissingCredentials = errors.New("sigv4: missing S3 credentials, set " + EnvAccessKey + " and " + EnvSecretKey)

// Credentials holds a static S3 access key pair.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Signer signs S3 requests for one endpoint/region.
type Signer struct {
	// Endpoint is the base URL of the S3-compatible store, e.g.
	// "https://s3.percolationlabs.ai".
	Endpoint string

	// Region for the credential scope. Defaults to "us-east-1".
	Region string

	// Credentials used for signing. When empty, the P8_S3_ACCESS_KEY and
	// P8_S3_SECRET_KEY environment variables are consulted.
	Credentials Credentials

	// Now returns the signing time; nil means time.Now. Injected in tests
	// for deterministic signatures.
	Now func() time.Time
}

// HeaderAuth is the result of SignHeaderAuth.
type HeaderAuth struct {
	Authorization string
	AmzDate       string
}

// PresignedObject is the result of PresignPut.
type PresignedObject struct {
	URL string
	Key string
}

// SignHeaderAuth computes the Authorization header for a request whose body
// hash is already known. bodyHash is the hex SHA-256 of the request body;
// this function performs no hashing of payload bytes itself. The
// tenant-identity header x-user-email is part of the signed headers, tying
// the signature to the caller's identity.
func (s *Signer) SignHeaderAuth(method, bucket, key, mimeType, bodyHash, tenantEmail string) (*HeaderAuth, error) {
	creds, err := s.resolveCredentials()
	if err != nil {
		return nil, err
	}

	amzDate := s.now().UTC().Format(amzDateLayout)
	dateStamp := amzDate[:8]
	scope := credentialScope(dateStamp, s.region())
	host := s.endpointHost()

	canonicalHeaders := "content-type:" + mimeType + "\n" +
		"host:" + host + "\n" +
		"x-amz-content-sha256:" + bodyHash + "\n" +
		"x-amz-date:" + amzDate + "\n" +
		"x-user-email:" + tenantEmail + "\n"
	signedHeaders := "content-type;host;x-amz-content-sha256;x-amz-date;x-user-email"

	canonicalRequest := strings.Join([]string{
		method,
		"/" + bucket + "/" + key,
		"",
		canonicalHeaders,
		signedHeaders,
		bodyHash,
	}, "\n")

	signature := s.sign(creds.SecretAccessKey, dateStamp, amzDate, scope, canonicalRequest)

	authorization := fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, creds.AccessKeyID, scope, signedHeaders, signature)

	return &HeaderAuth{Authorization: authorization, AmzDate: amzDate}, nil
}

// PresignPut builds a presigned PUT URL. The body is unknown at sign time,
// so the canonical request carries the UNSIGNED-PAYLOAD sentinel.
func (s *Signer) PresignPut(bucket, key string, expiresIn time.Duration) (*PresignedObject, error) {
	u, err := s.presign("PUT", bucket, key, expiresIn)
	if err != nil {
		return nil, err
	}
	return &PresignedObject{URL: u, Key: key}, nil
}

// PresignGet builds a presigned GET URL for reading an object.
func (s *Signer) PresignGet(bucket, key string, expiresIn time.Duration) (string, error) {
	return s.presign("GET", bucket, key, expiresIn)
}

func (s *Signer) presign(method, bucket, key string, expiresIn time.Duration) (string, error) {
	creds, err := s.resolveCredentials()
	if err != nil {
		return "", err
	}

	amzDate := s.now().UTC().Format(amzDateLayout)
	dateStamp := amzDate[:8]
	scope := credentialScope(dateStamp, s.region())
	host := s.endpointHost()

	query := url.Values{}
	query.Set("X-Amz-Algorithm", algorithm)
	query.Set("X-Amz-Credential", creds.AccessKeyID+"/"+scope)
	query.Set("X-Amz-Date", amzDate)
	query.Set("X-Amz-Expires", strconv.Itoa(int(expiresIn.Seconds())))
	query.Set("X-Amz-SignedHeaders", "host")
	canonicalQuery := query.Encode()

	canonicalRequest := strings.Join([]string{
		method,
		"/" + bucket + "/" + key,
		canonicalQuery,
		"host:" + host + "\n",
		"host",
		unsignedPayload,
	}, "\n")

	signature := s.sign(creds.SecretAccessKey, dateStamp, amzDate, scope, canonicalRequest)

	return fmt.Sprintf("%s/%s/%s?%s&X-Amz-Signature=%s",
		strings.TrimRight(s.Endpoint, "/"), bucket, key, canonicalQuery, signature), nil
}

// sign hashes the canonical request, builds the string to sign, derives the
// chained HMAC signing key, and returns the final lowercase hex signature.
func (s *Signer) sign(secretKey, dateStamp, amzDate, scope, canonicalRequest string) string {
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		SHA256Hex([]byte(canonicalRequest)),
	}, "\n")

	kDate := hmacSHA256([]byte("AWS4"+secretKey), dateStamp)
	kRegion := hmacSHA256(kDate, s.region())
	kService := hmacSHA256(kRegion, service)
	kSigning := hmacSHA256(kService, "aws4_request")

	return hex.EncodeToString(hmacSHA256(kSigning, stringToSign))
}

func (s *Signer) resolveCredentials() (Credentials, error) {
	creds := s.Credentials
	if creds.AccessKeyID == "" {
		creds.AccessKeyID = os.Getenv(EnvAccessKey)
	}
	if creds.SecretAccessKey == "" {
		creds.SecretAccessKey = os.Getenv(EnvSecretKey)
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return creds, nil
}

func (s *Signer) endpointHost() string {
	u, err := url.Parse(s.Endpoint)
	if err != nil || u.Host == "" {
		return defaultHost
	}
	return u.Host
}

func (s *Signer) region() string {
	if s.Region == "" {
		return "us-east-1"
	}
	return s.Region
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func credentialScope(dateStamp, region string) string {
	return dateStamp + "/" + region + "/" + service + "/aws4_request"
}

// SHA256Hex returns the lowercase hex SHA-256 digest of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}
