// Package outreach sends retention messages to members. The dispatcher walks
// the community's channel priority list, picks the first channel the member
// is reachable on, and hands the message to the transport. Message bodies are
// produced by the Liquid template renderer.
package outreach
