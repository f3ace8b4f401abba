/*
Package events provides an in-memory event broker for NGAS notifications.

The broker is a lightweight pub/sub bus: archive lifecycle events (file
ingested, archive failed, disk completed) and operator notifications (no
volumes available) are published by the coordinator and broadcast to every
subscriber. Publishing never blocks the archive path: the broker buffers up
to 100 events and a subscriber whose own buffer is full misses the event
rather than stalling the publisher.

Operator notification channels (mail, chat relays) and monitoring attach by
subscribing. The subscription worker's wake-up does not use this bus; it
goes through the wake channel of pkg/subscription's Trigger.
*/
package events
