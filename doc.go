/*
Package scan provides the data model for a Modbus/TCP register discovery
scan: function codes, addresses, discovery records, classified read
errors, scan configuration/options, scan state, and checkpoints.

A scan probes a device over one or more of the four standard read
function codes (coils, discrete inputs, holding registers, input
registers) across an address range, producing one DiscoveryRecord per
probed (address, function code) pair. It never writes to the device.

The orchestration of a scan — planning, pacing, buffering, resuming —
lives in the sibling scanner package and its internal/ helpers; this
package only describes what a scan produces and how it is configured.
*/
package scan
