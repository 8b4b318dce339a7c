// Package cli provides the interactive gophusers command-line client.
//
// The App drives a session.Reconciler for sign-in and sign-out and a
// services.ProfileService for profile edits. Session status changes are
// printed as they happen, so a session that the server rejects shows up
// in the terminal even while the user is idle at the prompt.
//
// Commands:
//   - login [assertion]   exchange an identity assertion for a session
//   - me | refresh        fetch the current user from the server
//   - profile             print the cached user
//   - set <field> <value> change address, phone or bio
//   - name <value>        change the display name
//   - avatar <path>       upload a profile picture
//   - status              print the session status
//   - logout
//   - help, exit | quit
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
