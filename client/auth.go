package client

import (
	"go.uber.org/zap"
)

// Handle the "USER" command.
func (c *Handler) handleUSER() {
	if c.serverSetting.TLSOnly && !c.secure {
		c.WriteMessage(StatusNotLoggedIn, "This server accepts logins over TLS only. Use AUTH TLS first")
		return
	}

	if err := c.hooks.Checker.CheckUser(c.param); err != nil {
		c.WriteMessage(StatusNotLoggedIn, "Invalid username")
		return
	}

	c.user = c.param
	c.waitingForPassword = true
	c.WriteMessage(StatusUserOK, "User name okay, need password.")
}

// Handle the "PASS" command.
func (c *Handler) handlePASS() {
	if !c.waitingForPassword {
		c.WriteMessage(StatusBadCommandSequence, "User is expected before Pass")
		return
	}

	defer func() {
		c.user = ""
		c.waitingForPassword = false
	}()

	username := c.user
	password := c.param

	if err := c.hooks.Checker.CheckPassword(username, password); err != nil {
		c.WriteMessage(StatusNotLoggedIn, "Invalid username or password")
		return
	}

	// Install the filesystem, the root and the initial cwd together:
	// a failure at any step leaves the session unauthenticated.
	fs, err := c.hooks.Filesystem(username)
	if err == nil {
		var root, cwd string
		root, err = c.hooks.GetRoot(username)
		if err == nil {
			cwd, err = c.hooks.GetInitialCwd(username)
			if err == nil {
				c.fs = fs
				c.root = root
				c.SetPath(cwd)
			}
		}
	}
	if err != nil {
		zap.L().Error("Login setup failed", zap.String("id", c.id),
			zap.String("user", username), zap.Error(err))
		c.WriteMessage(StatusServiceNotAvailable, "Service not available, closing control connection")
		c.hasQuit = true
		c.disconnect()
		return
	}

	c.loginUser = username
	c.WriteMessage(StatusUserLoggedIn, "User logged in, proceed.")
}
