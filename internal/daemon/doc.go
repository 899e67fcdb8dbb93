// Package daemon runs pagesdeploy as a long-lived service: the webhook trigger server,
// background run dispatch, housekeeping jobs and configuration reloads.
package daemon
