// Package cli provides the interactive StaffKeeper command-line client.
//
// The App wires configuration and the gRPC client to a small REPL. Commands
// take their arguments positionally and ask for whatever is missing:
//
//	login [login]                 sign in, answering one password per attempt
//	logout | whoami | passwd      session commands
//	create                        provision an account (prompts for names)
//	reset <login>                 issue a temporary password
//	role <login> <role>           change role
//	delete <login>                delete an account
//	names <login>                 update given and family names
//	move <login> <territory>      change territory
//	rename <login> <new login>    change login
//	list [territory] [role]       list accounts
//	show <login>                  show one account
//
// Passwords are read without echo when stdin is a terminal. A locked account
// is reported with the time left as hh:mm:ss.
package cli
