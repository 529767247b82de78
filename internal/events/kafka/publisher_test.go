package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ecotrace/internal/counter"
	"ecotrace/internal/events"
)

func TestRecordKey_SameDeviceSameKey(t *testing.T) {
	registered := events.Event{Kind: events.KindDeviceRegistered, Namespace: counter.NamespaceDevice, LedgerID: 7, TxHash: "0xreg"}
	transferred := events.Event{Kind: events.KindOwnershipTransferred, LedgerID: 7, TxHash: "0xtr"}
	updated := events.Event{Kind: events.KindStatusUpdated, LedgerID: 7, TxHash: "0xup"}

	assert.Equal(t, "deviceId:7", recordKey(registered))
	assert.Equal(t, "deviceId:7", recordKey(transferred))
	assert.Equal(t, "deviceId:7", recordKey(updated))
}

func TestRecordKey_ReportsDoNotCollideWithDevices(t *testing.T) {
	submitted := events.Event{Kind: events.KindReportSubmitted, Namespace: counter.NamespaceReport, LedgerID: 7, TxHash: "0xsub"}
	verified := events.Event{Kind: events.KindReportVerified, LedgerID: 7, TxHash: "0xver"}

	assert.Equal(t, "reportId:7", recordKey(submitted))
	assert.Equal(t, "reportId:7", recordKey(verified))
	assert.NotEqual(t, recordKey(verified), recordKey(events.Event{Kind: events.KindStatusUpdated, LedgerID: 7}))
}

func TestRecordKey_RegistrationsKeyByTxHash(t *testing.T) {
	ev := events.Event{Kind: events.KindUserRegistered, TxHash: "0xabc"}
	assert.Equal(t, "0xabc", recordKey(ev))
}
