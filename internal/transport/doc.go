// Package transport holds the concrete channel senders behind the outreach
// dispatcher. Email ships through AWS SES; chat and bot channels register
// here as their gateways come online.
package transport
