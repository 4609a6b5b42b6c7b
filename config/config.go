/*
	Configuration for the pkgrun CLI.

	Only the CLI loads this; everything below it takes plain values
	and constructed stores, so library users never need a config file.
*/
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/rlmcpherson/s3gof3r"
	. "github.com/warpfork/go-errcat"
	"gopkg.in/yaml.v3"
	"oras.land/oras-go/v2/registry/remote/auth"

	"go.polydawn.net/pkgrun/api"
	"go.polydawn.net/pkgrun/resolver"
	"go.polydawn.net/pkgrun/scheduler/group"
	"go.polydawn.net/pkgrun/store/dirstore"
	"go.polydawn.net/pkgrun/store/ocistore"
	"go.polydawn.net/pkgrun/store/s3store"
)

type Config struct {
	Workspace string        `yaml:"workspace"`
	Cache     string        `yaml:"cache,omitempty"` // Empty means no content cache.
	Timeout   time.Duration `yaml:"timeout"`
	Runtime   []string      `yaml:"runtime"`
	Store     StoreConfig   `yaml:"store"`
	Batch     BatchConfig   `yaml:"batch"`
}

type StoreKind string

const (
	StoreDir StoreKind = "dir"
	StoreS3  StoreKind = "s3"
	StoreOCI StoreKind = "oci"
)

type StoreConfig struct {
	Kind StoreKind `yaml:"kind"`
	Dir  struct {
		Root string `yaml:"root"`
	} `yaml:"dir,omitempty"`
	S3 struct {
		Domain    string `yaml:"domain,omitempty"`
		Bucket    string `yaml:"bucket"`
		Prefix    string `yaml:"prefix,omitempty"`
		Scheme    string `yaml:"scheme,omitempty"`
		PathStyle bool   `yaml:"pathStyle,omitempty"`
		AccessKey string `yaml:"accessKey,omitempty"`
		SecretKey string `yaml:"secretKey,omitempty"`
	} `yaml:"s3,omitempty"`
	OCI struct {
		Repository string `yaml:"repository"`
		PlainHTTP  bool   `yaml:"plainHTTP,omitempty"`
		Username   string `yaml:"username,omitempty"`
		Password   string `yaml:"password,omitempty"`
	} `yaml:"oci,omitempty"`
}

type BatchConfig struct {
	MaxConcurrency int  `yaml:"maxConcurrency"`
	StopOnFailure  bool `yaml:"stopOnFailure"`
}

// Default config: a dir store under the working directory and no cache.
func Default() Config {
	cfg := Config{
		Workspace: filepath.Join(os.TempDir(), "pkgrun", "workspace"),
		Timeout:   api.DefaultTimeout,
		Runtime:   []string{"/bin/sh"},
		Batch: BatchConfig{
			MaxConcurrency: group.DefaultSize,
		},
	}
	cfg.Store.Kind = StoreDir
	cfg.Store.Dir.Root = "packages"
	return cfg
}

/*
	Load a config file.  Fields the file doesn't mention keep their
	defaults; fields it has that we don't know are an error.
*/
func Load(path string) (Config, error) {
	cfg := Default()
	body, err := os.ReadFile(path)
	if err != nil {
		return cfg, Errorf(api.ErrUsage, "cannot read config: %s", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(body))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, Errorf(api.ErrUsage, "cannot parse config %q: %s", path, err)
	}
	return cfg, cfg.Validate()
}

func (cfg *Config) Validate() error {
	if cfg.Workspace == "" {
		return Errorf(api.ErrUsage, "config: workspace must be set")
	}
	if cfg.Timeout < 0 {
		return Errorf(api.ErrUsage, "config: timeout must not be negative")
	}
	if len(cfg.Runtime) == 0 {
		return Errorf(api.ErrUsage, "config: runtime must name at least a program")
	}
	if cfg.Batch.MaxConcurrency < 0 {
		return Errorf(api.ErrUsage, "config: batch.maxConcurrency must not be negative")
	}
	switch cfg.Store.Kind {
	case StoreDir:
		if cfg.Store.Dir.Root == "" {
			return Errorf(api.ErrUsage, "config: store.dir.root must be set")
		}
	case StoreS3:
		if cfg.Store.S3.Bucket == "" {
			return Errorf(api.ErrUsage, "config: store.s3.bucket must be set")
		}
	case StoreOCI:
		if cfg.Store.OCI.Repository == "" {
			return Errorf(api.ErrUsage, "config: store.oci.repository must be set")
		}
	default:
		return Errorf(api.ErrUsage, "config: unknown store kind %q (want dir, s3, or oci)", cfg.Store.Kind)
	}
	return nil
}

// OpenStore builds the configured artifact store.
func (cfg *Config) OpenStore(log log15.Logger) (api.ArtifactStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sc := cfg.Store
	switch sc.Kind {
	case StoreDir:
		log.Debug("opening dir store", "root", sc.Dir.Root)
		store, err := dirstore.New(sc.Dir.Root)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoreS3:
		log.Debug("opening s3 store", "domain", sc.S3.Domain, "bucket", sc.S3.Bucket, "prefix", sc.S3.Prefix)
		keys := s3gof3r.Keys{AccessKey: sc.S3.AccessKey, SecretKey: sc.S3.SecretKey}
		store, err := s3store.New(s3store.Config{
			Domain: sc.S3.Domain,
			Bucket: sc.S3.Bucket,
			Prefix:    sc.S3.Prefix,
			Scheme:    sc.S3.Scheme,
			PathStyle: sc.S3.PathStyle,
			Keys:      keys,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoreOCI:
		log.Debug("opening oci store", "repository", sc.OCI.Repository, "plainHTTP", sc.OCI.PlainHTTP)
		var cred auth.Credential
		if sc.OCI.Username != "" || sc.OCI.Password != "" {
			cred = auth.Credential{Username: sc.OCI.Username, Password: sc.OCI.Password}
		}
		store, err := ocistore.New(ocistore.Config{
			Repository: sc.OCI.Repository,
			PlainHTTP:  sc.OCI.PlainHTTP,
			Credential: cred,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		panic("unreachable")
	}
}

// OpenCache returns the configured content cache, or nil if there isn't one.
func (cfg *Config) OpenCache(log log15.Logger) (*resolver.Cache, error) {
	if cfg.Cache == "" {
		return nil, nil
	}
	return resolver.NewCache(cfg.Cache, log)
}
