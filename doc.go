/*
Package ddns keeps a Cloudflare AAAA record pointed at the host's most stable global IPv6 address.

Usage will always start with [ddns.New],
which returns a [Controller] for a [Store] holding the settings and runtime cache.
New requires a [Provider] implementation for a DNS provider; use [UsingCloudflare].
Additional options are listed in the docs for New.

The default [LocalResolver] ranks every global IPv6 address on the host by how long it is expected to live,
using the platform's address flags where it has them,
and breaks ties in favor of the address the OS routes outbound traffic from.
[Controller.Run] re-evaluates on every OS network-change notification and pushes only when the chosen address changes.

[WebResolver] asks external services instead, and [FallbackResolver] combines the two for hosts
that sometimes have no global address of their own.

[NewStatusHandler] serves the controller state and a small homepage listing the configured services.
*/
package ddns
