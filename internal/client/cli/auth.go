package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/nkrylov/cipherchat/internal/client/realtime"
	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/cryptox"
	"github.com/nkrylov/cipherchat/internal/keyring"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register creates an account, derives the user's key pair and publishes
// its public half.
//
// Two independent salts are generated: one for the login verifier, one for
// key derivation. The key-derivation salt is uploaded with the public JWK so
// any later device can re-derive the same pair from the password alone.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	authSalt, err := keyring.GenerateSalt()
	if err != nil {
		return err
	}
	authKey := cryptox.DeriveAuthKey(password, authSalt)
	defer common.WipeByteArray(authKey)

	if err := a.api.Register(ctx, userName, authSalt, cryptox.MakeVerifier(authKey)); err != nil {
		return err
	}
	if err := a.api.Login(ctx, userName, cryptox.MakeVerifier(authKey)); err != nil {
		return err
	}

	keySalt, err := keyring.GenerateSalt()
	if err != nil {
		return err
	}
	kp, err := a.deriver.DeriveKeyPair(string(password), keySalt)
	if err != nil {
		return err
	}
	if err := a.api.PublishKey(ctx, kp.PublicJWK, kp.SaltBase64); err != nil {
		return err
	}
	if err := a.repos.Keys.Save(ctx, a.api.CurrentUserID(), kp.Private.Bytes()); err != nil {
		a.logger.Warn(ctx, "storing private key locally", "error", err)
	}

	a.finishLogin(ctx, userName, kp)
	fmt.Println("Success!")
	return nil
}

// Login authenticates and re-derives the key pair from the password and the
// published key-derivation salt. A mismatch between the derived public key
// and the published one means the password is wrong for the key material,
// so login is refused even though the verifier check passed.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	authSalt, err := a.api.GetAuthSalt(ctx, userName)
	if err != nil {
		return err
	}
	authKey := cryptox.DeriveAuthKey(password, authSalt)
	defer common.WipeByteArray(authKey)

	if err := a.api.Login(ctx, userName, cryptox.MakeVerifier(authKey)); err != nil {
		return err
	}

	record, err := a.api.GetKey(ctx, a.api.CurrentUserID())
	if err != nil {
		return err
	}
	keySalt, err := base64.StdEncoding.DecodeString(record.SaltBase64)
	if err != nil {
		return fmt.Errorf("%w: stored salt is not base64: %v", common.ErrKeyDerivation, err)
	}
	kp, err := a.deriver.DeriveKeyPair(string(password), keySalt)
	if err != nil {
		return err
	}
	if !keyring.VerifyPublicKey(kp.PublicJWK, record.PublicKeyJWK) {
		return fmt.Errorf("%w: derived key does not match the published one", common.ErrKeyDerivation)
	}

	if err := a.repos.Keys.Save(ctx, a.api.CurrentUserID(), kp.Private.Bytes()); err != nil {
		a.logger.Warn(ctx, "storing private key locally", "error", err)
	}

	a.finishLogin(ctx, userName, kp)
	fmt.Println("Logged in.")
	return nil
}

func (a *App) finishLogin(ctx context.Context, userName string, kp *keyring.KeyPair) {
	a.userName = userName
	a.keyPair = kp
	// A closed session stays closed, so each login gets a fresh one.
	a.session = realtime.NewSession(a.feed, a.api, a.api, a.logger)
	if err := a.feed.Connect(ctx); err != nil {
		a.logger.Warn(ctx, "change feed unavailable, realtime updates disabled", "error", err)
	}
	a.flushOutbox(ctx)
}

// Logout drops the in-memory key pair and wipes the cached copy along with
// all locally cached ciphertext.
func (a *App) Logout(ctx context.Context) error {
	if userID := a.api.CurrentUserID(); userID != "" {
		if err := a.repos.Keys.Delete(ctx, userID); err != nil {
			return err
		}
	}
	if _, err := a.cache.ClearAll(ctx); err != nil {
		return err
	}
	a.session.Cleanup()
	a.keyPair = nil
	a.userName = ""
	return nil
}
