// Package cookies provisions per-job session cookies for gated platforms.
//
// A Provisioner drives a fresh headless browser against a domain, harvests
// the cookie jar and serializes it in the Netscape cookie file format that
// yt-dlp reads. Provisioning never fails a job on its own: any failure is
// logged and reported as "no cookies" so acquisition may continue without
// authentication.
//
// Browser profiles and cookie files live under the job's working directory
// and are removed with it.
package cookies
