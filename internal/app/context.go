// Package app is the composition root: it resolves the active library
// and account, wires the wire-class registry into the gateway client,
// and hands the assembled pieces to the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"hemlock/internal/account"
	"hemlock/internal/auth"
	"hemlock/internal/credstore"
	"hemlock/internal/gateway"
	"hemlock/internal/idl"
	"hemlock/internal/library"
	"hemlock/internal/records"
	"hemlock/internal/wire"
)

// NewRegistry builds the decoder registry with the known wire classes.
// Constructed once here; nothing else owns registry state.
func NewRegistry() *wire.Registry {
	reg := wire.NewRegistry()
	idl.Register(reg)
	return reg
}

// ResolveLibrary loads the library registry, seeding the default config
// when the workspace has none, and picks the active library.
func ResolveLibrary(workspace, override string) (*library.Config, *library.Library, error) {
	cfg, err := library.LoadOptional(workspace)
	if err != nil {
		return nil, nil, err
	}
	if cfg == nil {
		cfg = library.Default()
		if err := cfg.Save(workspace); err != nil {
			return nil, nil, fmt.Errorf("seed libraries config: %w", err)
		}
	}
	lib, err := cfg.Active(override)
	if err != nil {
		return nil, nil, err
	}
	return cfg, lib, nil
}

// ResolveCredential picks the stored credential for the library,
// preferring a username override.
func ResolveCredential(ctx context.Context, store credstore.Store, libraryID, username string) (credstore.Credential, error) {
	if username != "" {
		cred, err := store.Find(ctx, libraryID, username)
		if errors.Is(err, credstore.ErrNotFound) {
			return credstore.Credential{}, fmt.Errorf("no stored account %s for library %s; run hemlock login", username, libraryID)
		}
		return cred, err
	}
	cred, err := store.Active(ctx, libraryID)
	if errors.Is(err, credstore.ErrNotFound) {
		return credstore.Credential{}, fmt.Errorf("no stored account for library %s; run hemlock login", libraryID)
	}
	return cred, err
}

// Env bundles everything a logged-in CLI command works with.
type Env struct {
	Library   *library.Library
	Gateway   *gateway.Client
	Session   *auth.Session
	Account   *account.Account
	Assembler *records.Assembler
}

// Connect builds the gateway stack for a library and logs the credential
// in.
func Connect(ctx context.Context, lib *library.Library, cred auth.Credential) (*Env, error) {
	gw := gateway.NewClient(lib.BaseURL, NewRegistry())
	sess := auth.NewSession(gw)
	if err := sess.Login(ctx, cred); err != nil {
		return nil, err
	}
	return &Env{
		Library:   lib,
		Gateway:   gw,
		Session:   sess,
		Account:   account.New(gw, sess),
		Assembler: records.NewAssembler(gw, sess),
	}, nil
}
